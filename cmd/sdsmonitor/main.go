package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/app"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/run"
)

func main() {
	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&once, "once", false, "execute a single run immediately and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if once {
		rec, err := a.RunOnce(ctx)
		a.Stop()
		if err != nil {
			if errors.Is(err, run.ErrAlreadyCompleted) {
				fmt.Println("nothing to do:", err)
				return
			}
			fmt.Println("fatal run:", err)
			os.Exit(1)
		}
		fmt.Printf("run %d: selected=%d checked=%d failures=%d skipped=%d digests=%d\n",
			rec.ID, rec.Selected, rec.Checked, rec.Failures, rec.Skipped, rec.DigestsSent)
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		a.Stop()
		os.Exit(1)
	}

	<-ctx.Done()
	a.Stop()
}
