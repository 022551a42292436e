/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	BackupsDirName = "backups"
	backupSuffix   = ".bak"
	// stamp sorts lexicographically in time order
	backupStamp = "20060102-150405.000000000"
)

// writeAtomic replaces path with data: the previous file is copied to a timestamped
// backup, the new content goes to a temp file in the same directory and is renamed over.
func writeAtomic(path string, data []byte, keep int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	base := filepath.Base(path)
	bdir := filepath.Join(dir, BackupsDirName)
	if _, statErr := os.Stat(path); statErr == nil && keep > 0 {
		if err := os.MkdirAll(bdir, 0o755); err != nil {
			return fmt.Errorf("ensure backups dir: %w", err)
		}
		bname := fmt.Sprintf("%s.%s%s", base, time.Now().UTC().Format(backupStamp), backupSuffix)
		if err := copyFile(path, filepath.Join(bdir, bname)); err != nil {
			return fmt.Errorf("backup %s: %w", base, err)
		}
		pruneBackups(bdir, base, keep)
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp %s: %w", base, err)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", base, err)
	}
	return nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = sf.Close() }()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// backups lists the backups of base, oldest first.
func backups(bdir, base string) []string {
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, backupSuffix) {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out)
	return out
}

func pruneBackups(bdir, base string, keep int) {
	list := backups(bdir, base)
	for len(list) > keep {
		_ = os.Remove(list[0])
		list = list[1:]
	}
}

var errNoBackup = errors.New("no backups found")

// readJSON decodes path into dest after checking it against schema. A file that
// cannot be parsed or does not match falls back to the newest backup that does.
// A missing file leaves dest untouched and reports found=false.
func readJSON(path string, schema *schemaCheck, dest any) (found bool, err error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err == nil {
		if err = decodeChecked(b, schema, dest); err == nil {
			return true, nil
		}
	}
	primary := err
	list := backups(filepath.Join(filepath.Dir(path), BackupsDirName), filepath.Base(path))
	for i := len(list) - 1; i >= 0; i-- {
		bb, rerr := os.ReadFile(list[i])
		if rerr != nil {
			continue
		}
		if decodeChecked(bb, schema, dest) == nil {
			return true, nil
		}
	}
	return false, fmt.Errorf("read %s: %w; backup attempt: %v", filepath.Base(path), primary, errNoBackup)
}

func decodeChecked(b []byte, schema *schemaCheck, dest any) error {
	if schema != nil {
		if err := schema.validate(b); err != nil {
			return err
		}
	}
	return json.Unmarshal(b, dest)
}

func marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
