package session

// PTTControl is the part of the controller a custom PTT driver may use
type PTTControl interface {
	StartPushToTalk() error
	StopPushToTalk() error
	IsPttActive() bool
	IsConnected() bool
}

// PTTHandler drives push-to-talk from an external source such as a
// hardware button. Initialize is called once the session is connected;
// Cleanup when it starts disconnecting.
type PTTHandler interface {
	Initialize(ctl PTTControl)
	Cleanup()
}
