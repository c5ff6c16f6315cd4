package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/komadai/shogi-engine/internal/engine"
	"github.com/komadai/shogi-engine/internal/shogi"
	"github.com/komadai/shogi-engine/internal/store"
	"github.com/komadai/shogi-engine/internal/usi"
)

// defaultWeightsFile is the name auto-load scans for in each candidate
// directory when -evalfile isn't given and USI never sends "setoption
// name EvalFile".
const defaultWeightsFile = "shogi.nnue"

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	evalfile   = flag.String("evalfile", "", "path to NNUE weights file")
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
)

func main() {
	flag.Parse()
	shogi.Init()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	eng := engine.NewEngine(*hashMB)

	if err := loadWeights(eng, *evalfile); err != nil {
		log.Printf("Warning: NNUE weights not loaded: %v (using randomly initialized network)", err)
	}

	protocol := usi.New(eng)
	protocol.Run()
}

// loadWeights resolves weights in priority order: an explicit -evalfile
// flag, then the standard search paths on disk, then the last bundle
// cached in the persistent store (written out to a scratch file so the
// network loader can read it uniformly).
func loadWeights(eng *engine.Engine, explicit string) error {
	if explicit != "" {
		return eng.LoadWeights(explicit)
	}

	for _, dir := range searchPaths() {
		path := filepath.Join(dir, defaultWeightsFile)
		if fileExists(path) {
			if err := eng.LoadWeights(path); err != nil {
				log.Printf("failed to load weights from %s: %v", path, err)
				continue
			}
			log.Printf("NNUE weights loaded from %s", path)
			cacheWeights(path)
			return nil
		}
	}

	return loadFromCache(eng)
}

// cacheWeights best-effort persists the just-loaded bundle's raw bytes into
// the store, content-addressed by checksum, so a future run missing its
// on-disk copy can still recover it.
func cacheWeights(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	st, err := store.Open(storeDir())
	if err != nil {
		return
	}
	defer st.Close()
	if _, err := st.PutWeights(path, data); err != nil {
		log.Printf("failed to cache weights in store: %v", err)
	}
}

// loadFromCache falls back to the most recently cached weight bundle when
// no weights file is found on disk, writing it to a scratch file first
// since the network loader only reads from paths.
func loadFromCache(eng *engine.Engine) error {
	st, err := store.Open(storeDir())
	if err != nil {
		return err
	}
	defer st.Close()

	rec, ok, err := st.GetActiveWeights()
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrNotExist
	}

	scratch := filepath.Join(os.TempDir(), "shogi-usi-cached.nnue")
	if err := os.WriteFile(scratch, rec.Data, 0o600); err != nil {
		return err
	}
	if err := eng.LoadWeights(scratch); err != nil {
		return err
	}
	log.Printf("NNUE weights restored from cache: %s", store.SizeInfo(rec))
	return nil
}

func searchPaths() []string {
	return []string{
		filepath.Join(getHomeDir(), ".shogi-engine", "nnue"),
		"./nnue",
		".",
	}
}

func storeDir() string {
	return filepath.Join(getHomeDir(), ".shogi-engine", "store")
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
