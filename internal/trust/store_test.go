// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package trust_test

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/trust"
	coretesting "github.com/juju/cartd/testing"
)

type storeSuite struct {
	testing.IsolationSuite

	dir string
	k1  coretesting.Signer
	k2  coretesting.Signer
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.dir = c.MkDir()
	s.k1 = coretesting.NewSigner(c, "k1")
	s.k2 = coretesting.NewSigner(c, "k2")
}

func (s *storeSuite) TestLoad(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"))

	store, err := trust.Load(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(store.Path(), gc.Equals, path)
	c.Check(store.Len(), gc.Equals, 1)
	c.Check(store.Err(), jc.ErrorIsNil)
	c.Check(store.Contains(s.k1.Identity()), jc.IsTrue)
	c.Check(store.Contains(s.k2.Identity()), jc.IsFalse)
}

func (s *storeSuite) TestLoadMissingFile(c *gc.C) {
	_, err := trust.Load(filepath.Join(s.dir, "missing"))
	c.Check(err, gc.ErrorMatches, `opening allow-list: .*: trust store unavailable`)
	c.Check(errors.Is(err, cart.ErrTrustStore), jc.IsTrue)
}

func (s *storeSuite) TestLoadMalformed(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"), "cart garbage")
	store, err := trust.Load(path)
	c.Check(errors.Is(err, cart.ErrTrustStore), jc.IsTrue)
	c.Check(store, gc.IsNil)
}

func (s *storeSuite) TestNewStoreFailsUntilLoaded(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"))
	clk := testclock.NewClock(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	store := trust.NewStore(path, clk)

	_, err := store.Identities()
	c.Check(errors.Is(err, cart.ErrTrustStore), jc.IsTrue)
	c.Check(store.Contains(s.k1.Identity()), jc.IsFalse)

	c.Assert(store.Reload(), jc.ErrorIsNil)
	ids, err := store.Identities()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, gc.HasLen, 1)
	c.Check(store.LoadedAt(), gc.Equals, clk.Now())
}

func (s *storeSuite) TestReloadReplacesContents(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"))
	store, err := trust.Load(path)
	c.Assert(err, jc.ErrorIsNil)

	coretesting.WriteAllowList(c, s.dir, s.k2.AllowListLine("cart"))
	c.Assert(store.Reload(), jc.ErrorIsNil)
	c.Check(store.Contains(s.k1.Identity()), jc.IsFalse)
	c.Check(store.Contains(s.k2.Identity()), jc.IsTrue)
}

func (s *storeSuite) TestFailedReloadFailsClosed(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"))
	store, err := trust.Load(path)
	c.Assert(err, jc.ErrorIsNil)

	coretesting.WriteAllowList(c, s.dir, s.k2.AllowListLine("cart"), "cart broken")
	err = store.Reload()
	c.Check(errors.Is(err, cart.ErrTrustStore), jc.IsTrue)
	c.Check(store.Contains(s.k1.Identity()), jc.IsFalse)
	c.Check(store.Contains(s.k2.Identity()), jc.IsFalse)
	c.Check(store.Len(), gc.Equals, 0)
	_, err = store.Identities()
	c.Check(errors.Is(err, cart.ErrTrustStore), jc.IsTrue)

	err = os.Remove(path)
	c.Assert(err, jc.ErrorIsNil)
	coretesting.WriteAllowList(c, s.dir, s.k2.AllowListLine("cart"))
	c.Assert(store.Reload(), jc.ErrorIsNil)
	c.Check(store.Contains(s.k2.Identity()), jc.IsTrue)
}

func (s *storeSuite) TestIdentitiesReturnsCopy(c *gc.C) {
	path := coretesting.WriteAllowList(c, s.dir, s.k1.AllowListLine("cart"))
	store, err := trust.Load(path)
	c.Assert(err, jc.ErrorIsNil)

	ids, err := store.Identities()
	c.Assert(err, jc.ErrorIsNil)
	ids[0] = s.k2.Identity()

	again, err := store.Identities()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again[0].SameKey(s.k1.Identity()), jc.IsTrue)
}

func (s *storeSuite) TestConcurrentReadersSeeWholeSnapshots(c *gc.C) {
	one := []string{s.k1.AllowListLine("cart")}
	two := []string{s.k1.AllowListLine("cart"), s.k2.AllowListLine("cart")}
	path := coretesting.WriteAllowList(c, s.dir, one...)
	store, err := trust.Load(path)
	c.Assert(err, jc.ErrorIsNil)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				ids, err := store.Identities()
				if err != nil {
					continue
				}
				if len(ids) != 1 && len(ids) != 2 {
					c.Errorf("observed %d identities", len(ids))
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			coretesting.WriteAllowList(c, s.dir, two...)
		} else {
			coretesting.WriteAllowList(c, s.dir, one...)
		}
		_ = store.Reload()
	}
	close(done)
	wg.Wait()
}
