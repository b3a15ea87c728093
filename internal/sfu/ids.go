package sfu

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

type idGenerator struct {
	object func() string
	ufrag  func() string
	pwd    func() string
}

func newIDGenerator() (*idGenerator, error) {
	object, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("sfu: id generator: %w", err)
	}
	const iceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ufrag, err := nanoid.CustomASCII(iceAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("sfu: ufrag generator: %w", err)
	}
	pwd, err := nanoid.CustomASCII(iceAlphabet, 32)
	if err != nil {
		return nil, fmt.Errorf("sfu: pwd generator: %w", err)
	}
	return &idGenerator{object: object, ufrag: ufrag, pwd: pwd}, nil
}
