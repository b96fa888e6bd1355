package moderation

import (
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// Measures the cold-start cost of loading a large forbidden word list from
// Badger and building the automaton from it.
func Test_Moderation_Benchmark(t *testing.T) {
	req := require.New(t)
	path := t.TempDir()
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	wordCount := 100_000

	startSeed := time.Now()
	wb := db.NewWriteBatch()
	for i := 0; i < wordCount; i++ {
		key := []byte(fmt.Sprintf("blacklist:word_%d", i))
		_ = wb.Set(key, nil)
	}
	err = wb.Flush()
	req.NoError(err)

	fmt.Printf("Seeding %d words: %v\n", wordCount, time.Since(startSeed))

	startLoad := time.Now()
	var words []string
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // the words live in the keys
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("blacklist:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	req.NoError(err)
	fmt.Printf("Loading from Badger: %v\n", time.Since(startLoad))

	startBuild := time.Now()
	_, err = NewModerator(words, '*')
	req.NoError(err)

	fmt.Printf("Building AC automaton: %v\n", time.Since(startBuild))
	fmt.Printf("Total startup time for moderation: %v\n", time.Since(startLoad))
}
