package reactor

import "net"

type signalKind uint8

const (
	sigQuit signalKind = iota
	sigRegister
	sigShutdown
	sigReregister
	sigWrite
	sigSend
)

func (k signalKind) String() string {
	switch k {
	case sigQuit:
		return "Quit"
	case sigRegister:
		return "Register"
	case sigShutdown:
		return "Shutdown"
	case sigReregister:
		return "Reregister"
	case sigWrite:
		return "Write"
	case sigSend:
		return "Send"
	default:
		return "Unknown"
	}
}

// signal is the tagged variant enqueued by any goroutine and consumed only
// by the owning reactor (§3, §4.4). Realized as a single struct with a
// kind tag, rather than a Go sum-of-interfaces, to keep the hot Write path
// allocation-light.
type signal[S ReactorSocket] struct {
	kind     signalKind
	socket   S
	token    int
	interest Interest
	data     []byte
	addr     net.Addr
}

func quitSignal[S ReactorSocket]() signal[S] {
	return signal[S]{kind: sigQuit}
}

func registerSignal[S ReactorSocket](socket S) signal[S] {
	return signal[S]{kind: sigRegister, socket: socket}
}

func shutdownSignal[S ReactorSocket](token int) signal[S] {
	return signal[S]{kind: sigShutdown, token: token}
}

func reregisterSignal[S ReactorSocket](token int, interest Interest) signal[S] {
	return signal[S]{kind: sigReregister, token: token, interest: interest}
}

func writeSignal[S ReactorSocket](token int, data []byte) signal[S] {
	return signal[S]{kind: sigWrite, token: token, data: data}
}

func sendSignal[S ReactorSocket](token int, addr net.Addr, data []byte) signal[S] {
	return signal[S]{kind: sigSend, token: token, addr: addr, data: data}
}
