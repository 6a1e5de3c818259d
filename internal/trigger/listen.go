package trigger

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Listen returns the first systemd-activated socket passed to this process,
// or a new TCP listener on addr when the process was not socket activated.
func Listen(addr string) (net.Listener, error) {
	listeners, err := activatedListeners(os.LookupEnv, os.Getpid())
	if err != nil {
		return nil, err
	}
	if len(listeners) > 0 {
		for _, extra := range listeners[1:] {
			_ = extra.Close()
		}
		return listeners[0], nil
	}

	if addr == "" {
		return nil, fmt.Errorf("no listen address configured and no activated socket")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// activatedListeners returns the listeners passed via LISTEN_PID and
// LISTEN_FDS, or nil if the activation is absent or meant for another process.
func activatedListeners(lookup LookupFunc, pid int) ([]net.Listener, error) {
	pidStr, ok := lookup("LISTEN_PID")
	if !ok || pidStr == "" {
		return nil, nil
	}

	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		return nil, nil
	}

	fdsStr, ok := lookup("LISTEN_FDS")
	if !ok || fdsStr == "" {
		return nil, nil
	}

	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}

	// systemd passes descriptors starting at fd 3
	const firstFD = 3

	listeners := make([]net.Listener, 0, numFDs)
	for i := 0; i < numFDs; i++ {
		fd := firstFD + i
		file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", i))
		if file == nil {
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		listener, err := net.FileListener(file)
		// FileListener dups the descriptor
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}
		listeners = append(listeners, listener)
	}

	// child processes must not inherit the activation
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return listeners, nil
}
