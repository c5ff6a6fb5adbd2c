package ffs

// run describes one contiguous extent of a file's data, in units of
// fragments (fs_fsize bytes each). Offset is the fragment address on the
// backing source; a hole is represented with holeRun as the offset.
type run struct {
	offset int64
	length int64
}

// holeRun marks a run as a sparse hole: length fragments of zero bytes that
// are not backed by any on-disk fragment.
const holeRun = -1

// dataRuns builds this Inode's run list the first time it's needed and
// memoizes it, mirroring INode.dataruns() in the Python reference: FFS
// block pointers address fragments, so runs are built by watching for
// pointer values that advance by exactly one full block's worth of
// fragments, then condensed into (offset, length) pairs measured in
// fragments.
func (n *Inode) dataRuns() ([]run, error) {
	var outerErr error
	n.runlistOnce.Do(func() {
		blocks, err := n.iterBlocks()
		if err != nil {
			outerErr = err
			return
		}

		sb := n.vol.sb
		frag := int64(sb.frag)

		var (
			runs      []run
			runOffset int64
			haveRun   bool
			runSize   int64 = 1
		)

		flush := func() {
			size := runSize * frag
			if runOffset == 0 {
				runs = append(runs, run{offset: holeRun, length: size})
			} else {
				runs = append(runs, run{offset: runOffset, length: size})
			}
		}

		for _, blockNum := range blocks {
			if !haveRun {
				runOffset = blockNum
				haveRun = true
				continue
			}

			if blockNum == runOffset+(runSize*frag) {
				runSize++
				continue
			}

			flush()
			runOffset = blockNum
			runSize = 1
		}

		if haveRun {
			flush()
		}

		n.runlist = runs
	})
	return n.runlist, outerErr
}

// iterBlocks walks this Inode's direct and indirect block pointers in
// logical order, yielding exactly ceil(size/block_size) fragment
// addresses (or 0 for sparse holes).
func (n *Inode) iterBlocks() ([]int64, error) {
	d, err := n.decode()
	if err != nil {
		return nil, err
	}

	sb := n.vol.sb
	blockSize := int64(sb.bsize)
	numBlocks := (int64(d.size) + blockSize - 1) / blockSize
	numDirect := numBlocks
	if numDirect > ndaddr {
		numDirect = ndaddr
	}

	out := make([]int64, 0, numBlocks)
	for i := int64(0); i < numDirect; i++ {
		out = append(out, d.db[i])
	}
	numBlocks -= numDirect

	for level := 1; level <= niaddr && numBlocks > 0; level++ {
		indirectBlock := d.ib[level-1]
		blocks, err := n.walkIndirect(indirectBlock, level, &numBlocks)
		if err != nil {
			return nil, err
		}
		out = append(out, blocks...)
	}

	return out, nil
}

// walkIndirect recursively descends one indirect-pointer tree, reading only
// as many address entries at each level as are needed to satisfy
// remaining leaf blocks, matching INode._walk_indirect's read_blocks
// bound.
func (n *Inode) walkIndirect(block int64, level int, remaining *int64) ([]int64, error) {
	if level == 0 {
		*remaining--
		return []int64{block}, nil
	}

	sb := n.vol.sb
	addressesPerBlock := int64(sb.nindir)
	blocksPerNest := int64(1)
	for i := 1; i < level; i++ {
		blocksPerNest *= addressesPerBlock
	}

	readBlocks := (*remaining + blocksPerNest - 1) / blocksPerNest
	if readBlocks > addressesPerBlock {
		readBlocks = addressesPerBlock
	}
	if readBlocks < 0 {
		readBlocks = 0
	}

	offset := fsbtodb(sb, block) * devBsize
	addrs, err := n.vol.readAddrBlock(offset, int(readBlocks))
	if err != nil {
		return nil, err
	}

	var out []int64
	for _, addr := range addrs {
		if *remaining <= 0 {
			break
		}
		blocks, err := n.walkIndirect(addr, level-1, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, blocks...)
	}
	return out, nil
}
