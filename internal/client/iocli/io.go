// Package iocli ввод и вывод командной строки клиента
package iocli

//go:generate moq -out io_mock.go . IO

// IO терминал: вывод результатов, запрос строк и паролей
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	// Errorf пишет в поток ошибок
	Errorf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
