package main

import (
	"flag"
	"log"

	"github.com/danmuck/shuttle/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "profile":
		return "profile.toml"
	case "sender":
		return "cmd/sendctl/config.toml"
	case "receiver":
		return "cmd/recvctl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "profile", "config kind: profile|sender|receiver")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing profile")
	input := flag.String("input", "", "profile path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "profile" {
			log.Fatalf("-validate supports kind=profile only; run sendctl/recvctl to check %s configs", *kind)
		}
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		cfg, err := config.LoadProfile(path)
		if err != nil {
			log.Fatal(err)
		}
		f, _ := cfg.Format()
		log.Printf("Validated profile at %s (chunk=%d header=%d packet=%d)", path, f.ChunkSize, f.HeaderLen(), f.MaxPacketLen())
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
