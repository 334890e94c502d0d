// SPDX-License-Identifier: MIT

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped out in tests; terminals are required otherwise.
var readPassword = func(fd int) ([]byte, error) {
	return term.ReadPassword(fd)
}

// PromptCredentials reads account credentials interactively. The email is
// re-prompted until it is well-formed; the password is read without echo.
func PromptCredentials(in *os.File, out io.Writer) (email, password string, err error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
		if ValidEmail(email) {
			break
		}
		fmt.Fprintln(out, "Invalid email address, try again.")
	}

	fmt.Fprint(out, "Password: ")
	pw, err := readPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return "", "", fmt.Errorf("password: required")
	}
	return email, string(pw), nil
}
