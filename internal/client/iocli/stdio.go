package iocli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal реализует IO поверх произвольных потоков
type Terminal struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	// fd дескриптор ввода для чтения пароля без эха, -1 если ввод не терминал
	fd int
}

// NewStdio создает IO поверх stdin, stdout и stderr
func NewStdio() IO {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return &Terminal{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
		fd:     fd,
	}
}

// New создает IO поверх заданных потоков. Пароль читается как обычная строка.
func New(in io.Reader, out, errOut io.Writer) *Terminal {
	return &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		fd:     -1,
	}
}

func (t *Terminal) Println(a ...any) {
	_, _ = fmt.Fprintln(t.out, a...)
}

func (t *Terminal) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(t.out, format, a...)
}

func (t *Terminal) Errorf(format string, a ...any) {
	_, _ = fmt.Fprintf(t.errOut, format, a...)
}

func (t *Terminal) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

func (t *Terminal) ReadInput(prompt string) (string, error) {
	t.Printf("%s", prompt)
	input, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (t *Terminal) ReadPassword(prompt string) (string, error) {
	if t.fd < 0 {
		return t.ReadInput(prompt)
	}
	t.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(t.fd)
	t.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
