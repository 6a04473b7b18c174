package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/falk/agbsave-go/pkg/agbsave"
	"github.com/falk/agbsave-go/pkg/config"
	"github.com/falk/agbsave-go/pkg/fs"
	"github.com/falk/agbsave-go/pkg/keys"
	"github.com/falk/agbsave-go/pkg/mac"
)

const usage = `Usage: agbsave [options] <command> [args]

Commands:
  info    <container>                 show both save headers
  extract <container> <out.sav>       write the current save and its register sidecar
  inject  <container> <in.sav>        write a save into the container
  backup  <container> <out.zip>       archive the current save
  restore <in.zip> <container>        write an archived save into the container
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries everything a command needs.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	title *uint64 // overrides the title ID read from the container
	force bool
}

func run(args []string) error {
	var configPath, keysPath, logLevel, method, title string
	var level int
	var force bool

	flagSet := pflag.NewFlagSet("agbsave", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to YAML config")
	flagSet.StringVarP(&keysPath, "keys", "k", "", "path to keys file holding agb_cmac_key")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&method, "method", "", "backup archive compression (deflate, zstd)")
	flagSet.IntVarP(&level, "level", "l", 0, "backup archive compression level")
	flagSet.StringVar(&title, "title", "", "title ID (hex) to sign with instead of the one in the container")
	flagSet.BoolVarP(&force, "force", "f", false, "restore a backup even if it belongs to another title")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if keysPath != "" {
		cfg.KeysFile = keysPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if method != "" {
		cfg.Archive.Method = method
	}
	if flagSet.Changed("level") {
		cfg.Archive.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	lvl, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(lvl)

	a := &app{cfg: cfg, log: log, force: force}
	if title != "" {
		tid, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(title), "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("invalid --title %q: %w", title, err)
		}
		a.title = &tid
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return fmt.Errorf("no command given")
	}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "info":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: agbsave info <container>")
		}
		return a.info(cmdArgs[0])
	case "extract":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: agbsave extract <container> <out.sav>")
		}
		return a.extract(cmdArgs[0], cmdArgs[1])
	case "inject":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: agbsave inject <container> <in.sav>")
		}
		return a.inject(cmdArgs[0], cmdArgs[1])
	case "backup":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: agbsave backup <container> <out.zip>")
		}
		return a.backup(cmdArgs[0], cmdArgs[1])
	case "restore":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: agbsave restore <in.zip> <container>")
		}
		return a.restore(cmdArgs[0], cmdArgs[1])
	}
	flagSet.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "agbsave", "config.yaml")
}

// codecFor loads the signing key and binds it to the container's title.
// The title ID is read from headers that have not been verified yet, so
// every distinct title found is tried until one of them validates a slot.
// It returns the codec and the title it was bound to.
func (a *app) codecFor(ct agbsave.Container) (*agbsave.Codec, uint64, error) {
	var err error
	if a.cfg.KeysFile != "" {
		err = keys.Load(a.cfg.KeysFile)
	} else {
		err = keys.LoadDefault()
	}
	if err != nil {
		return nil, 0, fmt.Errorf("loading keys: %w", err)
	}
	key, err := keys.CMACKey()
	if err != nil {
		return nil, 0, err
	}

	if a.title != nil {
		codec, err := a.newCodec(key, *a.title)
		return codec, *a.title, err
	}

	info, err := agbsave.Inspect(ct, a.log)
	if err != nil {
		return nil, 0, err
	}
	titles := candidateTitles(info)
	for _, title := range titles {
		codec, err := a.newCodec(key, title)
		if err != nil {
			return nil, 0, err
		}
		if _, err := codec.Extract(ct); err != nil {
			if errors.Is(err, agbsave.ErrInvalidContainer) {
				a.log.WithField("title", fmt.Sprintf("%016X", title)).Debug("no slot verifies under title")
				continue
			}
			return nil, 0, err
		}
		return codec, title, nil
	}
	return nil, 0, fmt.Errorf("%w: no slot verifies under title IDs %s (use --title to override)",
		agbsave.ErrInvalidContainer, formatTitles(titles))
}

func (a *app) newCodec(key []byte, title uint64) (*agbsave.Codec, error) {
	oracle, err := mac.NewKeyedOracle(key, title)
	if err != nil {
		return nil, err
	}
	stable := &mac.Stabilizer{Oracle: oracle, Attempts: a.cfg.OracleAttempts, Log: a.log}
	return agbsave.NewCodec(stable, agbsave.WithLogger(a.log)), nil
}

// candidateTitles lists the distinct title IDs of headers carrying the
// ".SAV" magic, the slot the generations point at first.
func candidateTitles(info *agbsave.Info) []uint64 {
	order := []int{0, 1}
	if info.Newer == 2 {
		order = []int{1, 0}
	}
	var titles []uint64
	for _, i := range order {
		s := info.Slots[i]
		if !s.Present || slices.Contains(titles, s.Header.TitleID) {
			continue
		}
		titles = append(titles, s.Header.TitleID)
	}
	return titles
}

func formatTitles(titles []uint64) string {
	if len(titles) == 0 {
		return "(none)"
	}
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = fmt.Sprintf("%016X", t)
	}
	return strings.Join(parts, ", ")
}

func (a *app) info(path string) error {
	ct, err := fs.OpenContainer(path, false)
	if err != nil {
		return err
	}
	defer ct.Close()

	info, err := agbsave.Inspect(ct, a.log)
	if err != nil {
		return err
	}

	fmt.Printf("Title ID:  %016X\n", info.TitleID)
	fmt.Printf("Save type: %s (%d bytes)\n", info.SaveType, info.SaveSize)
	if info.Recovered {
		fmt.Println("First header is unusable; second header located by search.")
	}
	for i, s := range info.Slots {
		marker := " "
		if info.Newer == i+1 {
			marker = "*"
		}
		if !s.Present {
			fmt.Printf("%s Slot %d @ %#x: empty\n", marker, i+1, s.Offset)
			continue
		}
		fmt.Printf("%s Slot %d @ %#x: generation %d, registers %X\n",
			marker, i+1, s.Offset, s.Header.Generation, s.Header.RegisterSnapshot[:])
	}
	return nil
}

func (a *app) extract(containerPath, outPath string) error {
	ct, err := fs.OpenContainer(containerPath, false)
	if err != nil {
		return err
	}
	defer ct.Close()

	codec, _, err := a.codecFor(ct)
	if err != nil {
		return err
	}
	flat, err := codec.Extract(ct)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, flat.Data, 0o644); err != nil {
		return err
	}
	if err := fs.WriteSidecar(fs.SidecarPath(outPath, a.cfg.SidecarSuffix), flat.Snapshot); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"slot":       flat.Slot,
		"generation": flat.Header.Generation,
	}).Infof("extracted %s save to %s", agbsave.SaveTypeOf(len(flat.Data)), outPath)
	return nil
}

func (a *app) inject(containerPath, inPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	snap, err := fs.ReadSidecar(fs.SidecarPath(inPath, a.cfg.SidecarSuffix))
	if err != nil {
		return err
	}
	if snap == nil {
		a.log.Debug("no register sidecar, keeping stored value")
	}
	return a.write(containerPath, data, snap, nil)
}

func (a *app) backup(containerPath, outPath string) error {
	ct, err := fs.OpenContainer(containerPath, false)
	if err != nil {
		return err
	}
	defer ct.Close()

	codec, _, err := a.codecFor(ct)
	if err != nil {
		return err
	}
	flat, err := codec.Extract(ct)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	if err := fs.WriteBackupFile(outPath, flat, a.cfg.Archive.Method, a.cfg.Archive.Level); err != nil {
		return err
	}
	a.log.Infof("backed up slot %d to %s", flat.Slot, outPath)
	return nil
}

func (a *app) restore(archivePath, containerPath string) error {
	b, err := fs.ReadBackupFile(archivePath)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"title":      b.Manifest.TitleID,
		"generation": b.Manifest.Generation,
	}).Debug("read backup")

	checkTitle := func(title uint64) error {
		target := fmt.Sprintf("%016X", title)
		if b.Manifest.TitleID == "" || strings.EqualFold(b.Manifest.TitleID, target) {
			return nil
		}
		if !a.force {
			return fmt.Errorf("backup belongs to title %s, container to %s (use --force to restore anyway)",
				b.Manifest.TitleID, target)
		}
		a.log.WithFields(logrus.Fields{
			"backup":    b.Manifest.TitleID,
			"container": target,
		}).Warn("restoring backup of a different title")
		return nil
	}
	return a.write(containerPath, b.Data, b.Snapshot, checkTitle)
}

// write injects data into the container. check, when set, vets the title
// the container was verified under before anything is written.
func (a *app) write(containerPath string, data []byte, snap *agbsave.RegisterSnapshot, check func(title uint64) error) error {
	ct, err := fs.OpenContainer(containerPath, true)
	if err != nil {
		return err
	}

	codec, title, err := a.codecFor(ct)
	if err != nil {
		ct.Close()
		return err
	}
	if check != nil {
		if err := check(title); err != nil {
			ct.Close()
			return err
		}
	}
	if err := codec.Inject(ct, data, snap); err != nil {
		ct.Close()
		return err
	}
	if err := ct.Close(); err != nil {
		return err
	}
	a.log.Infof("wrote %s save into %s", agbsave.SaveTypeOf(len(data)), containerPath)
	return nil
}
