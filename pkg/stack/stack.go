package stack

import "context"

// Stack is the container-stack interface the deploy path drives. Build
// produces the service images, Start brings the stack up; readiness is
// checked afterwards by the health gate, not here.
type Stack interface {
	// Build builds every service of the stack.
	Build(ctx context.Context) error

	// Start brings the stack up in the background.
	Start(ctx context.Context) error

	// Stop tears the running stack down.
	Stop(ctx context.Context) error

	// Services lists the service names of the stack.
	Services() []string
}
