package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/tools"
)

// defaultCollection is where passages and url write without -collection.
var defaultCollection = embedding.PassageOptions{}.CollectionName()

func runRAG(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("rag", "[-collection name] query...")
	collection := fs.String("collection", defaultCollection, "full collection name to search")
	model := fs.String("model", a.config.LLM.QueryEmbeddingModel, "query embedding model")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no query given")
	}

	query := strings.Join(fs.Args(), " ")
	spinner := getSpinner("Searching...")
	result, err := a.service.RAG(ctx, []string{query}, embedding.RAGOptions{
		Model:      *model,
		Collection: *collection,
	})
	spinner.Finish()
	if err != nil {
		return err
	}

	if result == nil {
		color.Yellow("No context found\n")
		return nil
	}
	printPassages(result.Texts())
	return nil
}

func runDining(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("dining", "-region name message...")
	region := fs.String("region", "", "region name, searched in <region>_dining")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *region == "" || fs.NArg() == 0 {
		fs.Usage()
		return errors.New("a region and at least one message are required")
	}

	spinner := getSpinner("Looking for restaurants...")
	result, err := tools.GetDiningRecommendation(ctx, a.service, *region, fs.Args())
	spinner.Finish()
	if err != nil {
		return err
	}

	if result == nil {
		color.Yellow("No recommendations found in %s\n", tools.DiningCollection(*region))
		return nil
	}
	printPassages(result.Texts())
	return nil
}

func runCollections(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("collections", "[-delete name]")
	remove := fs.String("delete", "", "delete the named collection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer client.Release()

	if *remove != "" {
		if err := client.DeleteCollection(ctx, *remove); err != nil {
			return err
		}
		color.Green("✓ Deleted %s\n", *remove)
		return nil
	}

	names, err := client.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		color.Yellow("No collections\n")
		return nil
	}
	for _, name := range names {
		collection, err := client.GetCollection(ctx, name)
		if err != nil {
			return err
		}
		count, err := collection.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", color.CyanString("%-40s", name), color.WhiteString("%d", count))
	}
	return nil
}
