package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelClient       = "client"
	LabelClientNumber = "clientNumber"
	LabelInstrument   = "instrument"
	LabelAddress      = "address"
	LabelFile         = "file"
	LabelServer       = "server"
)

// MetricsNamespace is the prefix of all metrics exported by the agent
const MetricsNamespace = "miagent_"
