package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// SendCommand connects to a running shell, sends a command and returns the response
func SendCommand(socketPath, command string) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to shell: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from shell: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from shell: %w", err)
	}

	return response, nil
}

// QueryPort asks a running shell for the evaluation engine port. Zero means
// the port has not been allocated yet.
func QueryPort(socketPath string) (int, error) {
	response, err := SendCommand(socketPath, "GET_EVAL_ENGINE_SERVER_PORT")
	if err != nil {
		return 0, err
	}
	var data PortData
	if err := response.DecodeData(&data); err != nil {
		return 0, fmt.Errorf("failed to decode port response: %w", err)
	}
	return data.Port, nil
}

// WaitForPort polls the shell until it reports an allocated port or ctx ends
func WaitForPort(ctx context.Context, socketPath string, interval time.Duration) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if port, err := QueryPort(socketPath); err == nil && port != 0 {
			return port, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StreamLogs copies the shell's log stream to w until the shell closes it
func StreamLogs(socketPath string, historyLines int, w io.Writer) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "LOGS %d\n", historyLines); err != nil {
		return fmt.Errorf("failed to send command to shell: %w", err)
	}

	_, err = io.Copy(w, conn)
	return err
}

// IsRunning reports whether a shell answers on socketPath
func IsRunning(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	_, err := SendCommand(socketPath, "VERSION")
	return err == nil
}
