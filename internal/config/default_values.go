package config

const (
	DefaultRuntimeMaxSteps          = 128
	DefaultRuntimeContextTokenLimit = 24000

	DefaultCompactionThreshold      = 0.8
	DefaultCompactionRecentMessages = 12

	DefaultWorkflowMaxVerifyAttempts = 2
)
