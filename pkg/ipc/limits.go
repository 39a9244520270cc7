package ipc

const (
	maxRequestBodyBytes int64 = 16 << 10

	maxWSClients   = 512
	maxWSReadBytes = 64 << 10

	defaultInboundRate  = 200
	defaultInboundBurst = 400

	defaultSessionCreateRate  = 2
	defaultSessionCreateBurst = 10
)
