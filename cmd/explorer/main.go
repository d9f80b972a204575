// Command explorer drives the entries API from a terminal the way the map
// client does: it keeps a view centered on a point, searches addresses and
// publishes entries.
//
//	explorer [list]           list entries around the default center
//	explorer search <text>... recenter on each address in turn
//	explorer seed             publish sample entries around the center
//	explorer delete <id>      delete an entry
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/auth"
	"github.com/ukydev/eventual/internal/client"
	"github.com/ukydev/eventual/internal/config"
	"github.com/ukydev/eventual/internal/geocode"
	"github.com/ukydev/eventual/internal/mapsync"
	"github.com/ukydev/eventual/internal/models"
)

// Sample places around the default center.
var sampleAddresses = []string{
	"Puerta del Sol, Madrid",
	"Plaza Mayor, Madrid",
	"Gran Vía 28, Madrid",
	"Museo del Prado, Madrid",
	"Mercado de San Miguel, Madrid",
	"Templo de Debod, Madrid",
}

var sampleTitles = []string{"Street concert", "Flea market", "Open-air cinema", "Tapas crawl", "Book fair"}

// printView renders the map state as text.
type printView struct {
	out io.Writer
}

func (v printView) Recenter(c models.Coordinate) {
	fmt.Fprintf(v.out, "center %.6f, %.6f\n", c.Lat, c.Lon)
}

func (v printView) Render(entries []models.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(v.out, "  no entries nearby")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(v.out, "  %s  %-7s %-30s %-12s %s\n", e.ID.Hex(), e.Kind, e.Title, e.Rank, e.Location.Address)
	}
}

func (v printView) Notify(message string) {
	fmt.Fprintf(v.out, "! %s\n", message)
}

// sampleRequest builds a random event or review for one of sampleAddresses.
func sampleRequest(rng *rand.Rand, now time.Time) models.CreateRequest {
	req := models.CreateRequest{
		Title:   sampleTitles[rng.Intn(len(sampleTitles))],
		Address: sampleAddresses[rng.Intn(len(sampleAddresses))],
	}
	if rng.Intn(2) == 0 {
		req.Rank = models.TimestampRank(now.Add(time.Duration(1+rng.Intn(72)) * time.Hour).Truncate(time.Hour))
	} else {
		req.Title += " review"
		req.Rank = models.RatingRank(float64(rng.Intn(11)) / 2)
	}
	return req
}

type deleter interface {
	Delete(ctx context.Context, id string) error
}

func run(ctx context.Context, args []string, ctrl *mapsync.Controller, api deleter, author string, out io.Writer) error {
	cmd := "list"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "list":
		ctrl.Refresh(ctx)
	case "search":
		if len(args) == 0 {
			return fmt.Errorf("search needs at least one address")
		}
		for _, text := range args {
			ctrl.Search(ctx, text)
			ctrl.Wait()
		}
	case "seed":
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for i := 0; i < len(sampleAddresses); i++ {
			req := sampleRequest(rng, time.Now())
			req.AuthorID = author
			ctrl.Submit(ctx, req)
		}
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("delete needs exactly one id")
		}
		if err := api.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", args[0])
		ctrl.Refresh(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	ctrl.Wait()
	return nil
}

// explorerToken returns token when set. Otherwise, with a shared secret, it
// mints a short-lived assertion for author.
func explorerToken(token, secret, author string) (string, error) {
	if token != "" || secret == "" {
		return token, nil
	}
	if strings.TrimSpace(author) == "" {
		return "", fmt.Errorf("minting a token needs -author")
	}
	return auth.NewService(secret).IssueToken(models.Identity{Email: author, ExpiresAt: time.Now().Add(time.Hour)})
}

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	apiURL := flag.String("api", cfg.APIBaseURL, "base URL of the entries API")
	author := flag.String("author", os.Getenv("EXPLORER_AUTHOR"), "author id for seeded entries when no token is set")
	secret := flag.String("secret", cfg.JWTSecret, "shared secret used to mint a token when API_TOKEN is unset")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	token, err := explorerToken(cfg.APIToken, *secret, *author)
	if err != nil {
		log.WithError(err).Error("Explorer failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	api := client.New(*apiURL, token)
	geocoder := geocode.NewNominatimResolver(cfg.GeocoderURL, cfg.GeocoderLanguage, cfg.GeocoderAgent, cfg.GeocoderTimeout)
	center := models.Coordinate{Lat: cfg.DefaultCenter[0], Lon: cfg.DefaultCenter[1]}
	ctrl := mapsync.New(api, geocoder, api, printView{out: os.Stdout}, center)

	log.WithFields(log.Fields{
		"api_url": *apiURL,
		"center":  fmt.Sprintf("%.6f,%.6f", center.Lat, center.Lon),
		"command": strings.Join(flag.Args(), " "),
	}).Debug("Starting explorer")

	if err := run(ctx, flag.Args(), ctrl, api, *author, os.Stdout); err != nil {
		log.WithError(err).Error("Explorer failed")
		os.Exit(1)
	}
}
