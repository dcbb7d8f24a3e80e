// Package iocli абстрагирует терминальный ввод-вывод CLI, чтобы команды
// можно было тестировать без захвата stdout.
package iocli

//go:generate go tool moq -out io_mock.go . IO

// IO определяет интерфейс терминала команд.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
}
