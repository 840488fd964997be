package ports

import "context"

// RemoteExecutionBackend is the capability surface of an external simulator.
//
// Implementations report a lost session by returning an error that wraps
// harness.ErrSimulatorSession.
type RemoteExecutionBackend interface {
	Open(ctx context.Context) error
	Load(ctx context.Context, payload []byte) error
	Start(ctx context.Context) error
	IsBusy(ctx context.Context) (bool, error)
	Stop(ctx context.Context) error
	ReadRegister(ctx context.Context, name string) (string, error)
	Close() error
}
