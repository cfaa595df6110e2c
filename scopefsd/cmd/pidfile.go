// Copyright 2025 The scopefs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// acquirePidFile takes an exclusive lock on path and writes the pid into
// it. The lock pins the file's inode for the process lifetime, so the pid
// is written in place rather than via an atomic rename. The returned lock
// must be held until exit; a second instance fails here instead of racing
// for the mountpoint.
func acquirePidFile(path string, pid int) (*flock.Flock, error) {
	lock := flock.New(path)
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking pid file %s: %w", path, err)
	}
	if !held {
		return nil, fmt.Errorf("pid file %s is locked by another instance", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("writing pid file %s: %w", path, err)
	}
	return lock, nil
}

// releasePidFile drops the lock and removes the file. Errors are returned
// for logging only; shutdown proceeds regardless.
func releasePidFile(lock *flock.Flock) error {
	path := lock.Path()
	if err := lock.Unlock(); err != nil {
		return fmt.Errorf("unlocking pid file %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing pid file %s: %w", path, err)
	}
	return nil
}
