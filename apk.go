package axml

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/sirupsen/logrus"
)

// ManifestEntry is the binary XML entry decoded when no other entry is asked for.
const ManifestEntry = "AndroidManifest.xml"

// Binary XML files of manifest/layout scale are far below this.
const maxEntrySize = 64 * 1024 * 1024

// DecodeApk decodes the binary XML stored as entry in the APK at apkPath.
// An empty entry means AndroidManifest.xml.
func DecodeApk(apkPath, entry string) (string, error) {
	return (&Decoder{}).DecodeApk(apkPath, entry)
}

func (d *Decoder) DecodeApk(apkPath, entry string) (string, error) {
	zr, err := OpenZip(apkPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", apkPath, err)
	}
	defer zr.Close()

	return d.DecodeZipEntry(zr, entry)
}

// DecodeZipEntry decodes entry from an already opened zip. Every entry stored
// under the name is tried in turn, the first one that decodes wins.
func (d *Decoder) DecodeZipEntry(zr *ZipReader, entry string) (string, error) {
	if entry == "" {
		entry = ManifestEntry
	}

	zf := zr.File[path.Clean(entry)]
	if zf == nil {
		return "", fmt.Errorf("failed to find %s: %w", entry, os.ErrNotExist)
	}

	var lastErr error
	for i := 0; i < zf.Count(); i++ {
		data, err := zf.ReadEntry(i, maxEntrySize)
		if err == nil {
			var out string
			if out, err = d.Decode(data); err == nil {
				return out, nil
			}
		}

		if d.Log != nil {
			d.Log.WithFields(logrus.Fields{
				"entry": entry,
				"index": i,
			}).WithError(err).Debug("entry could not be decoded")
		}

		if errors.Is(err, ErrPlainTextManifest) {
			return "", err
		}
		lastErr = err
	}

	if lastErr == nil {
		return "", fmt.Errorf("failed to find %s: %w", entry, os.ErrNotExist)
	}
	return "", fmt.Errorf("failed to decode %s, last error: %w", entry, lastErr)
}
