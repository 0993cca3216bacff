package main

import (
	"context"
	"errors"

	"github.com/higress-group/newsrag/llm"
)

// offlineLLM satisfies llm.Provider for commands that never generate.
type offlineLLM struct{}

var errOffline = errors.New("llm is not available in this command")

func (offlineLLM) Generate(context.Context, string, llm.Options) (string, error) {
	return "", errOffline
}

func (offlineLLM) GenerateStream(context.Context, string, llm.Options, func(string) error) error {
	return errOffline
}
