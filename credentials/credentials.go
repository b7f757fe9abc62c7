package credentials

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// FileError is returned when a credential file is missing or malformed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("credential file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrMissingFields = errors.New("expected at least two comma-separated fields")
)

// Load reads username,password from loginPath and client_id,client_secret
// from keysPath.
func Load(loginPath, keysPath string) (Credentials, error) {
	username, password, err := readPair(loginPath)
	if err != nil {
		return Credentials{}, err
	}
	clientID, clientSecret, err := readPair(keysPath)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		Username:     username,
		Password:     password,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, nil
}

func readPair(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", &FileError{Path: path, Err: err}
	}
	defer f.Close()

	first, second, err := parsePair(f)
	if err != nil {
		return "", "", &FileError{Path: path, Err: err}
	}
	return first, second, nil
}

func parsePair(r io.Reader) (string, string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return "", "", ErrEmptyFile
	}
	if err != nil {
		return "", "", fmt.Errorf("parse: %w", err)
	}
	if len(record) < 2 {
		return "", "", fmt.Errorf("%w, got %d", ErrMissingFields, len(record))
	}

	return record[0], record[1], nil
}
