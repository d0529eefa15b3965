package gitcli

import (
	"strings"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/procpipe"
	"github.com/pepperstats/pepperstats/internal/queue"
)

// DefaultMetaBatchSize is the maximum number of ids one metadata
// worker batches into a single subprocess invocation, used when
// Options.MetaBatchSize is unset.
const DefaultMetaBatchSize = 128

// metaWorker pulls batches of up to batchSize ids from q, spawning one
// fresh subprocess per batch: the batch's ids are written
// newline-separated to the child's stdin, which is then closed to
// mark end-of-batch, so a given subprocess serves exactly one batch.
func metaWorker(gitExe, repoPath string, batchSize int, q *queue.Queue[string, metaRecord], log *zap.Logger) {
	for {
		ids, ok := q.GetArgs(batchSize)
		if !ok {
			return
		}
		runMetaBatch(gitExe, repoPath, ids, q, log)
	}
}

func runMetaBatch(gitExe, repoPath string, ids []string, q *queue.Queue[string, metaRecord], log *zap.Logger) {
	children := make([]string, len(ids))
	for i, id := range ids {
		_, child := splitIDLocal(id)
		children[i] = child
	}

	argv := []string{gitExe, "-C", repoPath, "log", "--no-walk", "--stdin",
		"--format=%x00%nauthor %an <%ae> %at %az%ncommitter %cn <%ce> %ct %cz%n%n%w(0,4,4)%B"}

	pipe, err := procpipe.Start(argv)
	if err != nil {
		failAll(q, ids)
		log.Debug("metadata subprocess failed to start", zap.Error(err))
		return
	}
	if _, err := pipe.Write([]byte(strings.Join(children, "\n") + "\n")); err != nil {
		_ = pipe.Release()
		failAll(q, ids)
		log.Debug("metadata subprocess write failed", zap.Error(err))
		return
	}
	if err := pipe.CloseWrite(); err != nil {
		_ = pipe.Release()
		failAll(q, ids)
		return
	}
	output, err := pipe.ReadAll()
	relErr := pipe.Release()
	if err != nil || relErr != nil {
		failAll(q, ids)
		log.Debug("metadata subprocess failed", zap.Error(err), zap.Error(relErr))
		return
	}

	blocks := splitHeaderBlocks(output)
	if len(blocks) != len(ids) {
		log.Debug("metadata batch size mismatch", zap.Int("want", len(ids)), zap.Int("got", len(blocks)))
	}
	for i, id := range ids {
		if i >= len(blocks) {
			q.Failed(id)
			continue
		}
		rec, err := parseHeader(id, blocks[i])
		if err != nil {
			q.Failed(id)
			log.Debug("header parse failed", zap.String("revision", id), zap.Error(err))
			continue
		}
		q.Done(id, rec)
	}
}

func failAll(q *queue.Queue[string, metaRecord], ids []string) {
	for _, id := range ids {
		q.Failed(id)
	}
}

func splitIDLocal(id string) (parent, child string) {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}
