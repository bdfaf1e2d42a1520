package messaging

import "time"

type NatsServerOpt func(*NatsServer)

func WithStartTimeout(d time.Duration) NatsServerOpt {
	return func(s *NatsServer) {
		s.startupTimeout = d
	}
}

func WithHost(host string) NatsServerOpt {
	return func(s *NatsServer) {
		s.host = host
	}
}

func WithPort(port int) NatsServerOpt {
	return func(s *NatsServer) {
		s.port = port
	}
}
