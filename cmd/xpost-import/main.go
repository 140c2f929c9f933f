package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikequentel/xpost/internal/config"
	"github.com/mikequentel/xpost/internal/logger"
	"github.com/mikequentel/xpost/internal/store"
)

var (
	inFile   = flag.String("in", "", "HTML file to import from (required)")
	selector = flag.String("selector", "p", "CSS selector; each match becomes one draft")
	dbPath   = flag.String("db", "", "drafts database (default <data dir>/xpost.db)")
	minChars = flag.Int("min-chars", 1, "skip texts shorter than this many characters")
	csvOut   = flag.String("csv", "", "also write the extracted texts to this CSV file")
	dryRun   = flag.Bool("dry-run", false, "print what would be imported and exit")
)

var rePunctSpace = regexp.MustCompile(`\s+([,.;:!?])`)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if *inFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*inFile)
	must(err)
	texts, err := extract(f, *selector, *minChars)
	f.Close()
	if err != nil {
		log.Fatalf("parse %s: %v", *inFile, err)
	}

	if *csvOut != "" {
		if err := writeCSV(*csvOut, texts); err != nil {
			log.Fatalf("write csv: %v", err)
		}
	}

	if *dryRun {
		fmt.Printf("DRY RUN: %d drafts from %s\n", len(texts), *inFile)
		for i, t := range texts {
			fmt.Printf("---- %d\n%s\n", i+1, t)
		}
		return
	}

	path := *dbPath
	if path == "" {
		dir, err := config.DefaultDataDir()
		must(err)
		path = filepath.Join(dir, "xpost.db")
	}
	db, err := store.Open(path)
	must(err)
	defer db.Close()

	n, err := importDrafts(context.Background(), db, texts, time.Now())
	if err != nil {
		log.Fatalf("import: %v (saved %d before the failure)", err, n)
	}
	logger.Get().Info().Str("in", *inFile).Str("db", path).Int("drafts", n).Msg("import done")
}

// extract returns the whitespace-normalized text of every element matching
// sel, skipping ones shorter than minChars runes.
func extract(r io.Reader, sel string, minChars int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if text == "" || len([]rune(text)) < minChars {
			return
		}
		out = append(out, text)
	})
	return out, nil
}

// cleanText collapses whitespace runs and drops the space before trailing
// punctuation ("word ," becomes "word,").
func cleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return rePunctSpace.ReplaceAllString(s, "$1")
}

type draftSaver interface {
	SaveDraft(ctx context.Context, d store.Draft) error
}

// importDrafts saves texts in order. Each draft is stamped one millisecond
// after the previous so the browser lists them in document order, newest
// (last) first.
func importDrafts(ctx context.Context, db draftSaver, texts []string, now time.Time) (int, error) {
	for i, t := range texts {
		d, err := store.NewDraft(t, now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return i, err
		}
		if err := db.SaveDraft(ctx, d); err != nil {
			return i, err
		}
	}
	return len(texts), nil
}

func writeCSV(path string, texts []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write([]string{"n", "text"})
	for i, t := range texts {
		w.Write([]string{fmt.Sprint(i + 1), t})
	}
	w.Flush()
	return w.Error()
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
