package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"somnarium.ai/internal/apiclient"
	"somnarium.ai/internal/reconstruct"
	"somnarium.ai/internal/session"
	"somnarium.ai/internal/sim/capture"
	"somnarium.ai/internal/sim/catalogs"
	"somnarium.ai/internal/sim/params"
	"somnarium.ai/internal/sim/tuning"
)

// bot drives the client sessions against a running server: "ar" plays a
// capture round and uploads it, "vr" loads a code, "feed" tails new codes.
func main() {
	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "ar":
			arCmd(os.Args[2:], logger)
			return
		case "vr":
			vrCmd(os.Args[2:], logger)
			return
		case "feed":
			feedCmd(os.Args[2:], logger)
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: bot ar|vr|feed [flags]")
	os.Exit(2)
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func loadTuning(path string, logger *log.Logger) tuning.Tuning {
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	return tune
}

func newClient(baseURL string, tune tuning.Tuning) *apiclient.Client {
	return apiclient.New(baseURL, apiclient.Options{Timeout: time.Duration(tune.Client.TimeoutMs) * time.Millisecond})
}

func arCmd(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("ar", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:3000", "server base url")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning file")
	items := fs.String("items", "gravity-anomaly,humming-relic,chromatic-shifter", "comma separated slugs to spawn and catch")
	debug := fs.Bool("debug", false, "fill the inventory with the debug items instead of playing")
	_ = fs.Parse(args)

	tune := loadTuning(*tuningPath, logger)
	col := capture.NewCollector(capture.ConfigFromTuning(tune.Capture), nil)
	ar := session.NewAR(col, newClient(*baseURL, tune), tune.Capture.RequiredForUpload, logger)

	ctx, cancel := interruptContext()
	defer cancel()

	ar.Probe(ctx)
	logStatus(logger, ar)

	if *debug {
		for i := 0; i < tune.Capture.InventorySize; i++ {
			if _, err := ar.CollectDebug(i); err != nil {
				logger.Printf("debug collect %d: %v", i, err)
			}
			logStatus(logger, ar)
		}
	} else {
		for i, slug := range splitSlugs(*items) {
			if err := catch(ar, col, slug, capture.Vec3{X: float64(i), Y: 1.5, Z: 2}); err != nil {
				logger.Printf("catch %s: %v", slug, err)
			}
			logStatus(logger, ar)
		}
	}

	code, err := ar.Upload(ctx)
	logStatus(logger, ar)
	if err != nil {
		logger.Fatalf("upload: %v", err)
	}
	fmt.Println(code)
}

// catch spawns one bubble, pops it with the trigger and walks onto the
// falling payload until it is collected.
func catch(ar *session.AR, col *capture.Collector, slug string, at capture.Vec3) error {
	id, err := col.SpawnRandom(slug, at)
	if err != nil {
		return err
	}
	const dt = 1.0 / 60
	ar.Tick(dt, capture.Input{Target: id, Trigger: true, HasGround: true})
	for i := 0; i < 600; i++ {
		u, ok := col.Unit(id)
		if !ok {
			return capture.ErrUnknownUnit
		}
		for _, ev := range ar.Tick(dt, capture.Input{Player: u.Payload, HasGround: true}) {
			switch {
			case ev.UnitID != id:
			case ev.Kind == capture.EventCollected:
				return nil
			case ev.Kind == capture.EventRejected:
				return fmt.Errorf("rejected: %s", ev.Reason)
			}
		}
	}
	return fmt.Errorf("%s never reached the player", id)
}

func vrCmd(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("vr", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:3000", "server base url")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning file")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: bot vr [flags] <code>")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	gen, err := params.NewGenerator(&cats.Items)
	if err != nil {
		logger.Fatalf("item catalog: %v", err)
	}
	tune := loadTuning(*tuningPath, logger)
	vr := session.NewVR(reconstruct.New(newClient(*baseURL, tune), gen, logger), logger)

	ctx, cancel := interruptContext()
	defer cancel()

	r, err := vr.Submit(ctx, fs.Arg(0))
	logger.Printf("status: %s", <-vr.Status())
	if err != nil {
		os.Exit(1)
	}
	for _, it := range r.Items {
		var kv []string
		for _, p := range it.Params.Params {
			kv = append(kv, fmt.Sprintf("%s=%.3f", p.Name, p.Value))
		}
		fmt.Printf("%d %-18s seed=%.6f %s\n", it.Index, it.Slug, it.Seed, strings.Join(kv, " "))
	}
	for _, s := range r.Skipped {
		fmt.Printf("%d %-18s skipped: %s\n", s.Index, s.Slug, s.Reason)
	}
}

// logStatus prints the latest status line, if one is waiting.
func logStatus(logger *log.Logger, ar *session.AR) {
	select {
	case st := <-ar.Status():
		logger.Printf("status: %s (online=%v slots=%d upload=%v)", st.Message, st.Online, len(st.Slots), st.UploadEnabled)
	default:
	}
}

func splitSlugs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
