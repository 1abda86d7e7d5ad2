package shell

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"

	kerrors "nanosec-go/errors"
)

// Terminal puts the real controlling terminal into raw mode for the
// duration of an interactive session, so the shell receives every
// keystroke directly the way the keyboard ISR would feed a ring buffer on
// real hardware — grounded on utils/console.go's PTY-handling shape,
// generalized from a PTY master/slave pair to the process's own stdin fd.
type Terminal struct {
	fd       int
	oldState *term.State
	reader   *bufio.Reader
}

// OpenTerminal puts os.Stdin into raw mode. Call Restore when done.
func OpenTerminal() (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.KindInternal, "termio_raw")
	}
	return &Terminal{fd: fd, oldState: state, reader: bufio.NewReader(os.Stdin)}, nil
}

// ReadLine reads one line, handling the raw-mode lack of local echo and
// line buffering the kernel's own keyboard ISR would otherwise provide.
func (t *Terminal) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := t.reader.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return string(line), nil
			}
			return "", err
		}
		switch b {
		case '\r', '\n':
			os.Stdout.Write([]byte("\r\n"))
			return string(line), nil
		case 127, '\b': // backspace/delete
			if len(line) > 0 {
				line = line[:len(line)-1]
				os.Stdout.Write([]byte("\b \b"))
			}
		case 3: // Ctrl-C
			return "", io.EOF
		default:
			line = append(line, b)
			os.Stdout.Write([]byte{b})
		}
	}
}

// Restore returns the terminal to its original mode.
func (t *Terminal) Restore() error {
	return term.Restore(t.fd, t.oldState)
}
