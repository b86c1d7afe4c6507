package featureflag

type Flag string

const (
	FlagDisableFindPruning   Flag = "DISABLE_FIND_PRUNING"
	FlagDisableAutoSubdivide Flag = "DISABLE_AUTO_SUBDIVIDE"
	FlagDisableAutoResize    Flag = "DISABLE_AUTO_RESIZE"
	FlagDisableDefaultIndex  Flag = "DISABLE_DEFAULT_INDEX"
)
