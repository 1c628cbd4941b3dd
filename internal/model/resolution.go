package model

// ResolutionState はスレッドルート解決の三値結果を表す。
// 呼び出し元が「解決済み」「後で解決できる可能性がある」「恒久的に解決不能」を
// 区別できるよう、例外ではなく明示的な状態として返す。
type ResolutionState string

const (
	// ResolutionResolved はkind=storyのルートまで到達できたことを示す。
	ResolutionResolved ResolutionState = "resolved"
	// ResolutionMissingAncestor は親チェーンの途中でローカルに存在しない
	// アイテムに突き当たったことを示す。上流から取得すれば解決できる可能性がある。
	ResolutionMissingAncestor ResolutionState = "missing_ancestor"
	// ResolutionCycle は親ポインタに循環を検出したことを示す。解決不能。
	ResolutionCycle ResolutionState = "cycle"
	// ResolutionDeadEnd はローカルに存在する非storyアイテムで親チェーンが
	// 途切れたことを示す。上流から取得しても解決できない。
	ResolutionDeadEnd ResolutionState = "dead_end"
)

// RootResolution はDBウォークによるスレッドルート解決の結果。
type RootResolution struct {
	State ResolutionState
	// RootID はStateがResolvedの場合のルートストーリーID。
	RootID int64
	// MissingID はStateがMissingAncestorの場合に不足している祖先のID。
	MissingID int64
	// LastKnownID はウォークが到達した最後のローカルアイテムID。
	LastKnownID int64
}

// Resolved は解決に成功したかどうかを返す。
func (r RootResolution) Resolved() bool {
	return r.State == ResolutionResolved
}

// Retryable は上流からの祖先取得で解決できる可能性があるかどうかを返す。
func (r RootResolution) Retryable() bool {
	return r.State == ResolutionMissingAncestor
}
