package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/processor"
	"github.com/xhad/solar/pkg/scraper"
)

func runPassages(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("passages", "[-collection name] [-id prefix] [-file path | text...]")
	collection := fs.String("collection", "", "collection suffix, stored as embeddings-<name>")
	id := fs.String("id", embedding.DefaultIDPrefix, "id prefix, passages are stored as <prefix>_<index>")
	model := fs.String("model", a.config.LLM.PassageEmbeddingModel, "passage embedding model")
	file := fs.String("file", "", "read passages from a file, one per line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	messages := fs.Args()
	if *file != "" {
		lines, err := readLines(*file)
		if err != nil {
			return err
		}
		messages = append(messages, lines...)
	}
	if len(messages) == 0 {
		fs.Usage()
		return errors.New("no passages given")
	}

	opts := embedding.PassageOptions{
		Model:      *model,
		Collection: *collection,
		ID:         *id,
	}
	spinner := getSpinner(fmt.Sprintf("Embedding %d passages...", len(messages)))
	results, err := a.service.PassageEmbeddings(ctx, messages, opts)
	spinner.Finish()
	if err != nil {
		return err
	}

	color.Green("✓ Stored %d passages in %s\n", len(results), opts.CollectionName())
	return nil
}

func runPDF(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("pdf", "[-collection name] file.pdf")
	collection := fs.String("collection", "", "collection suffix, stored as embeddings-<name>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one PDF file")
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	spinner := getSpinner(fmt.Sprintf("Analyzing %s...", filepath.Base(path)))
	results, err := a.service.PDFEmbeddings(ctx, models.UploadFile{
		Filename: filepath.Base(path),
		Content:  f,
	}, *collection)
	spinner.Finish()
	if err != nil {
		return err
	}

	if len(results) == 0 {
		color.Yellow("No elements long enough to embed in %s\n", path)
		return nil
	}
	color.Green("✓ Stored %d elements in %s\n", len(results), embedding.CollectionName(*collection))
	return nil
}

func runURL(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("url", "[-collection name] [-depth n] https://example.com")
	collection := fs.String("collection", "", "collection suffix, stored as embeddings-<name>")
	depth := fs.Int("depth", a.config.Scraper.MaxDepth, "maximum link depth to follow")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one URL")
	}

	startURL := fs.Arg(0)
	if !strings.HasPrefix(startURL, "http") {
		startURL = "https://" + startURL
	}
	color.Blue("\nStarting ingestion pipeline for %s\n", startURL)

	var scrapeCount int32
	s := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          *depth,
		RateLimit:         a.config.Scraper.RateLimit,
		IgnorePatterns:    a.config.Scraper.IgnorePatterns,
		AllowedExtensions: a.config.Scraper.AllowedExtensions,
		Logger:            a.logger,
		OnProgress: func(string) {
			atomic.AddInt32(&scrapeCount, 1)
		},
	})

	scrapingBar := getProgressBar(-1, "Scraping pages...")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				scrapingBar.Set(int(atomic.LoadInt32(&scrapeCount)))
			}
		}
	}()

	pages, err := s.Scrape(ctx, startURL)
	close(done)
	scrapingBar.Finish()
	if err != nil {
		return fmt.Errorf("failed to scrape %s: %w", startURL, err)
	}
	color.Green("\n✓ Scraped %d pages\n", len(pages))

	splitter := processor.NewSplitter(processor.SplitterConfig{
		ChunkSize:      a.config.Processor.ChunkSize,
		ChunkOverlap:   a.config.Processor.ChunkOverlap,
		MinChunkLength: a.config.Processor.MinChunkLength,
	})

	passages := splitter.Process(pages)
	byURL := make(map[string][]string)
	var order []string
	for _, p := range passages {
		if _, ok := byURL[p.URL]; !ok {
			order = append(order, p.URL)
		}
		byURL[p.URL] = append(byURL[p.URL], p.Text)
	}

	storageBar := getProgressBar(len(order), "Embedding pages...")
	for _, pageURL := range order {
		// Name-based ids make re-ingesting a page overwrite its passages.
		prefix := uuid.NewSHA1(uuid.NameSpaceURL, []byte(pageURL)).String()
		if _, err := a.service.PassageEmbeddings(ctx, byURL[pageURL], embedding.PassageOptions{
			Model:      a.config.LLM.PassageEmbeddingModel,
			Collection: *collection,
			ID:         prefix,
		}); err != nil {
			return fmt.Errorf("failed to store %s: %w", pageURL, err)
		}
		storageBar.Add(1)
	}
	storageBar.Finish()

	color.Green("\n✓ Stored %d passages in %s\n", len(passages), embedding.PassageOptions{Collection: *collection}.CollectionName())
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
