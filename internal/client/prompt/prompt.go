// Package prompt asks the user for gateway credentials missing from the
// configuration.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when input ends before a required answer.
var ErrNoInput = errors.New("no input")

// Credentials asks on out for whichever of username and password is empty
// and reads the answers line by line from in. Non-empty arguments are
// returned unchanged.
func Credentials(in io.Reader, out io.Writer, username, password string) (string, string, error) {
	scanner := bufio.NewScanner(in)

	var err error
	if username == "" {
		if username, err = ask(scanner, out, "Enter gateway username: "); err != nil {
			return "", "", fmt.Errorf("username: %w", err)
		}
	}
	if password == "" {
		if password, err = ask(scanner, out, "Enter gateway password: "); err != nil {
			return "", "", fmt.Errorf("password: %w", err)
		}
	}
	return username, password, nil
}

func ask(scanner *bufio.Scanner, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrNoInput
	}
	answer := strings.TrimSpace(scanner.Text())
	if answer == "" {
		return "", ErrNoInput
	}
	return answer, nil
}
