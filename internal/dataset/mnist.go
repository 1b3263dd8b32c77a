package dataset

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// MirrorURL is the public mirror holding the four canonical MNIST archives.
const MirrorURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// NumClasses is the number of digit classes.
const NumClasses = 10

type archive struct {
	name   string
	digest string
}

var (
	trainImages = archive{"train-images-idx3-ubyte.gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"}
	trainLabels = archive{"train-labels-idx1-ubyte.gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"}
	testImages  = archive{"t10k-images-idx3-ubyte.gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"}
	testLabels  = archive{"t10k-labels-idx1-ubyte.gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"}
)

// Raw holds one decoded IDX split before preprocessing.
type Raw struct {
	Pixels     []uint8 // count*rows*cols, row major
	Labels     []uint8
	Count      int
	Rows, Cols int
}

// Fetch downloads (or reuses a checksum-verified cached copy of) the MNIST
// archives under dir and decodes them into raw train and test splits.
func Fetch(ctx context.Context, dir string) (train, test Raw, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Raw{}, Raw{}, fmt.Errorf("create data dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range []archive{trainImages, trainLabels, testImages, testLabels} {
		a := a
		g.Go(func() error {
			return ensureArchive(gctx, dir, a)
		})
	}
	if err := g.Wait(); err != nil {
		return Raw{}, Raw{}, err
	}

	train, err = loadSplit(dir, trainImages, trainLabels)
	if err != nil {
		return Raw{}, Raw{}, fmt.Errorf("load train split: %w", err)
	}
	test, err = loadSplit(dir, testImages, testLabels)
	if err != nil {
		return Raw{}, Raw{}, fmt.Errorf("load test split: %w", err)
	}
	return train, test, nil
}

func ensureArchive(ctx context.Context, dir string, a archive) error {
	path := filepath.Join(dir, a.name)
	if ok, err := verifyChecksum(path, a.digest); err == nil && ok {
		return nil
	}
	if err := download(ctx, MirrorURL+a.name, path); err != nil {
		return fmt.Errorf("download %s: %w", a.name, err)
	}
	ok, err := verifyChecksum(path, a.digest)
	if err != nil {
		return fmt.Errorf("verify %s: %w", a.name, err)
	}
	if !ok {
		return fmt.Errorf("verify %s: checksum mismatch", a.name)
	}
	return nil
}

func verifyChecksum(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == want, nil
}

func download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func loadSplit(dir string, images, labels archive) (Raw, error) {
	raw, err := readIDXImages(filepath.Join(dir, images.name))
	if err != nil {
		return Raw{}, err
	}
	raw.Labels, err = readIDXLabels(filepath.Join(dir, labels.name))
	if err != nil {
		return Raw{}, err
	}
	if len(raw.Labels) != raw.Count {
		return Raw{}, fmt.Errorf("image/label count mismatch: %d images, %d labels", raw.Count, len(raw.Labels))
	}
	return raw, nil
}

func openGzip(path string) (io.ReadCloser, *gzip.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("gunzip %s: %w", filepath.Base(path), err)
	}
	return f, gz, nil
}

func readIDXImages(path string) (Raw, error) {
	f, gz, err := openGzip(path)
	if err != nil {
		return Raw{}, err
	}
	defer f.Close()
	defer gz.Close()
	return ParseImages(gz)
}

func readIDXLabels(path string) ([]uint8, error) {
	f, gz, err := openGzip(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer gz.Close()
	return ParseLabels(gz)
}

// ParseImages decodes an IDX3 image stream (big-endian header, then raw
// uint8 pixels).
func ParseImages(r io.Reader) (Raw, error) {
	var head struct{ Magic, Num, Rows, Cols uint32 }
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return Raw{}, fmt.Errorf("read image header: %w", err)
	}
	if head.Magic != imageMagic {
		return Raw{}, fmt.Errorf("bad image magic 0x%08x", head.Magic)
	}
	if head.Rows == 0 || head.Cols == 0 {
		return Raw{}, fmt.Errorf("bad image dimensions %dx%d", head.Rows, head.Cols)
	}
	raw := Raw{
		Count: int(head.Num),
		Rows:  int(head.Rows),
		Cols:  int(head.Cols),
	}
	raw.Pixels = make([]uint8, raw.Count*raw.Rows*raw.Cols)
	if _, err := io.ReadFull(r, raw.Pixels); err != nil {
		return Raw{}, fmt.Errorf("read pixels: %w", err)
	}
	return raw, nil
}

// ParseLabels decodes an IDX1 label stream.
func ParseLabels(r io.Reader) ([]uint8, error) {
	var head struct{ Magic, Num uint32 }
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, fmt.Errorf("read label header: %w", err)
	}
	if head.Magic != labelMagic {
		return nil, fmt.Errorf("bad label magic 0x%08x", head.Magic)
	}
	labels := make([]uint8, head.Num)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}
