package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tessera-io/tessera/internal/model"
)

// Upload streams a local file to a node's staging directory. The file
// keeps its base name on the remote side.
func Upload(ctx context.Context, client *http.Client, node model.Node, path string) error {
	if client == nil {
		client = http.DefaultClient
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}

	url := fmt.Sprintf("http://%s/v1/stage/%s", node.XferAddr(), filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return errors.Wrap(err, "build upload request")
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "upload %s to node %d", filepath.Base(path), node.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.Errorf("upload %s to node %d: unexpected status %s",
			filepath.Base(path), node.ID, resp.Status)
	}
	return nil
}
