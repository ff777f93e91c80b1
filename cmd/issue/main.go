// Command issue creates tickets in the MySQL store and prints them as CSV
// (id, code, category, holder) for the printing pipeline.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/gate-redemption/internal/database"
	"github.com/iliyamo/gate-redemption/internal/issuance"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

func main() {
	_ = godotenv.Load()

	var (
		holder     = pflag.StringP("holder", "n", "", "holder name for a single ticket")
		contact    = pflag.StringP("contact", "c", "", "holder e-mail or phone")
		category   = pflag.StringP("category", "k", "SINGLE", "SINGLE or MULTI")
		batch      = pflag.StringP("batch", "b", "", "CSV file of name,contact,category rows ('-' for stdin)")
		codeLength = pflag.Int("code-length", envInt("CODE_LENGTH", model.DefaultCodeLength), "digits in the manual entry code")
		migrate    = pflag.Bool("migrate", false, "create tables before issuing")
	)
	pflag.Parse()

	if *holder == "" && *batch == "" {
		pflag.Usage()
		os.Exit(2)
	}

	db, err := database.Open(database.Options{
		User: os.Getenv("DB_USER"), Pass: os.Getenv("DB_PASS"),
		Host: os.Getenv("DB_HOST"), Port: envStr("DB_PORT", "3306"), Name: os.Getenv("DB_NAME"),
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	is := issuance.NewIssuer(repository.NewMySQLStore(db), *codeLength)
	out := csv.NewWriter(os.Stdout)
	defer out.Flush()

	var reqs []issuance.Request
	if *holder != "" {
		reqs = append(reqs, issuance.Request{HolderName: *holder, HolderContact: *contact, Category: model.Category(*category)})
	}
	if *batch != "" {
		more, err := readBatch(*batch)
		if err != nil {
			log.Fatalf("batch: %v", err)
		}
		reqs = append(reqs, more...)
	}

	for i, r := range reqs {
		t, err := is.Issue(ctx, r)
		if err != nil {
			log.Fatalf("ticket %d (%s): %v", i+1, r.HolderName, err)
		}
		_ = out.Write([]string{t.ID, t.Code, string(t.Category), t.HolderName})
	}
}

func readBatch(path string) ([]issuance.Request, error) {
	var src io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		src = f
	}
	r := csv.NewReader(bufio.NewReader(src))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []issuance.Request
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.HasPrefix(rec[0], "#") {
			continue
		}
		req := issuance.Request{HolderName: rec[0], Category: model.CategorySingle}
		if len(rec) > 1 {
			req.HolderContact = rec[1]
		}
		if len(rec) > 2 && rec[2] != "" {
			req.Category = model.Category(strings.ToUpper(rec[2]))
		}
		if strings.TrimSpace(req.HolderName) == "" {
			return nil, fmt.Errorf("line %d: empty holder name", line)
		}
		out = append(out, req)
	}
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	var n int
	if _, err := fmt.Sscanf(os.Getenv(k), "%d", &n); err == nil && n > 0 {
		return n
	}
	return d
}
