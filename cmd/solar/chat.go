package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/llm"
	"github.com/xhad/solar/pkg/store"
)

func runChat(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("chat", "[-collection name] [-no-stream]")
	collection := fs.String("collection", defaultCollection, "collection to ground answers on, empty to disable")
	noStream := fs.Bool("no-stream", false, "wait for the whole answer instead of streaming it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	color.Cyan("Chatting with %s. Type 'exit' to quit.\n", a.config.LLM.ChatModel)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgGreen, color.Bold).Print("\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		passages, err := retrieve(ctx, a, input, *collection)
		if err != nil {
			return err
		}
		messages := llm.RAGMessages(input, passages)

		color.New(color.FgBlue, color.Bold).Print("Solar: ")
		if *noStream {
			err = answer(ctx, a, messages)
		} else {
			err = streamAnswer(ctx, a, messages)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.Red("\nError: %v\n", err)
		}
	}
}

// retrieve returns the grounding passages for input. A missing collection
// only disables grounding.
func retrieve(ctx context.Context, a *app, input, collection string) ([]string, error) {
	if collection == "" {
		return nil, nil
	}
	result, err := a.service.RAG(ctx, []string{input}, embedding.RAGOptions{
		Model:      a.config.LLM.QueryEmbeddingModel,
		Collection: collection,
	})
	if errors.Is(err, store.ErrCollectionNotFound) {
		color.Yellow("Collection %s not found, answering without context\n", collection)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result.Texts(), nil
}

func answer(ctx context.Context, a *app, messages []models.Message) error {
	spinner := getSpinner("Thinking...")
	response, err := a.client.Generate(ctx, messages, "")
	spinner.Finish()
	if err != nil {
		return err
	}
	fmt.Println(response)
	return nil
}

func streamAnswer(ctx context.Context, a *app, messages []models.Message) error {
	stream := a.client.StreamGenerate(ctx, messages, "")
	defer stream.Close()

	for chunk := range stream.Chunks() {
		fmt.Print(chunk)
	}
	fmt.Println()
	return stream.Err()
}
