package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ggeimport/ggeimport/internal/protocol"
)

// minCredentialLen matches the environment override rule.
const minCredentialLen = 2

// maxAttempts bounds how often a too-short value is asked again.
const maxAttempts = 3

// PromptCredentials asks for the game account on out and reads the answers
// from in. An empty username answer keeps defaultUser.
func PromptCredentials(in io.Reader, out io.Writer, defaultUser string) (protocol.Credentials, error) {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Game Account ──")

	user, err := promptRequired(reader, out, "Username", defaultUser)
	if err != nil {
		return protocol.Credentials{}, err
	}
	pass, err := promptRequired(reader, out, "Password", "")
	if err != nil {
		return protocol.Credentials{}, err
	}
	return protocol.Credentials{Username: user, Password: pass}, nil
}

func promptRequired(reader *bufio.Reader, out io.Writer, prompt, defaultVal string) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		v, err := promptString(reader, out, prompt, defaultVal)
		if err != nil {
			return "", err
		}
		if len(v) >= minCredentialLen {
			return v, nil
		}
		fmt.Fprintf(out, "    Must be at least %d characters.\n", minCredentialLen)
	}
	return "", fmt.Errorf("no valid %s entered", strings.ToLower(prompt))
}

func promptString(reader *bufio.Reader, out io.Writer, prompt, defaultVal string) (string, error) {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}

	if input == "" {
		return defaultVal, nil
	}
	return input, nil
}
