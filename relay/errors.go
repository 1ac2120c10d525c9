package relay

import "fmt"

const (
	ConfigurationError = iota

	ConnectionError

	DisconnectedError

	InvalidTopicError

	InvalidURIError

	ListenerError

	ProtocolError

	UnknownError
)

func NewError(errorCode int, message ...interface{}) error {
	var errorName string

	switch errorCode {
	case ConfigurationError:
		errorName = "ConfigurationError"
	case ConnectionError:
		errorName = "ConnectionError"
	case DisconnectedError:
		errorName = "DisconnectedError"
	case InvalidTopicError:
		errorName = "InvalidTopicError"
	case InvalidURIError:
		errorName = "InvalidURIError"
	case ListenerError:
		errorName = "ListenerError"
	case ProtocolError:
		errorName = "ProtocolError"
	default:
		errorName = "UnknownError"
	}

	if len(message) > 0 {
		return fmt.Errorf("%s: %s", errorName, message[0])
	}

	return fmt.Errorf("%s", errorName)
}
