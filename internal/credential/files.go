package credential

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// readApplicationHash returns the first non-comment line of the password
// file, or "" when the file is absent or empty.
func readApplicationHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read password file: %w", err)
	}
	defer clear(data)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", nil
}

// lookupField returns field index idx of the colon-separated entry for user.
func lookupField(path, user string, idx int) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	defer clear(data)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) <= idx || parts[0] != user {
			continue
		}
		return parts[idx], true, nil
	}
	return "", false, scanner.Err()
}

// systemHash resolves the superuser hash, following the passwd "x" marker
// into the shadow file.
func systemHash(passwdPath, shadowPath, user string) (string, error) {
	field, found, err := lookupField(passwdPath, user, 1)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read passwd: %w", err)
	}
	if found && field != "x" && field != "" {
		return field, nil
	}
	hash, found, err := lookupField(shadowPath, user, 1)
	if err != nil {
		return "", fmt.Errorf("read shadow: %w", err)
	}
	if !found {
		return "", fmt.Errorf("no shadow entry for %q", user)
	}
	return hash, nil
}
