// Package matching 实现描述子的 k 近邻匹配、Lowe 比率测试与最佳参考选择
package matching

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/TIANLI0/SignKit/model"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor 一个近邻候选，距离为欧氏距离（非平方）
type Neighbor struct {
	RefIdx   int
	QueryIdx int
	Distance float64
}

// KnnMatcher 对每个参考描述子在查询描述子中查找 k 个最近邻
type KnnMatcher interface {
	KnnMatch(ref, query []model.Descriptor, k int) ([][]Neighbor, error)
}

// KDTreeMatcher 基于 gonum kd-tree 的匹配器
//
// Checks 为 0 时是精确搜索；大于 0 时使用确定性的 best-bin-first 搜索，
// 每个查询最多比较 Checks 个描述子。距离相同时取查询下标较小者。
type KDTreeMatcher struct {
	Checks int
}

func NewKDTreeMatcher(checks int) *KDTreeMatcher {
	return &KDTreeMatcher{Checks: checks}
}

func (m *KDTreeMatcher) KnnMatch(ref, query []model.Descriptor, k int) ([][]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) == 0 {
		return make([][]Neighbor, len(ref)), nil
	}

	dims := len(query[0])
	points := make(descriptorPoints, len(query))
	for i, d := range query {
		if len(d) != dims {
			return nil, fmt.Errorf("query descriptor %d has %d dims, want %d", i, len(d), dims)
		}
		points[i] = newDescriptorPoint(d, i)
	}
	tree := kdtree.New(points, false)

	out := make([][]Neighbor, len(ref))
	for i, d := range ref {
		if len(d) != dims {
			return nil, fmt.Errorf("reference descriptor %d has %d dims, want %d", i, len(d), dims)
		}
		found := m.search(tree, newDescriptorPoint(d, i), k)
		row := make([]Neighbor, len(found))
		for j, f := range found {
			row[j] = Neighbor{RefIdx: i, QueryIdx: f.point.idx, Distance: math.Sqrt(f.dist)}
		}
		out[i] = row
	}
	return out, nil
}

type candidate struct {
	point descriptorPoint
	dist  float64 // 平方距离
}

// before 按 (距离, 下标) 排序，等距时下标小者优先
func (c candidate) before(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.point.idx < o.point.idx
}

// search 返回按距离升序排列的至多 k 个近邻
func (m *KDTreeMatcher) search(tree *kdtree.Tree, q descriptorPoint, k int) []candidate {
	best := make([]candidate, 0, k+1)
	keep := func(c candidate) {
		if len(best) == k && !c.before(best[k-1]) {
			return
		}
		i := sort.Search(len(best), func(i int) bool { return c.before(best[i]) })
		best = append(best, candidate{})
		copy(best[i+1:], best[i:])
		best[i] = c
		if len(best) > k {
			best = best[:k]
		}
	}
	worst := func() float64 {
		if len(best) < k {
			return math.Inf(1)
		}
		return best[k-1].dist
	}

	checked := 0
	limit := m.Checks
	branches := &branchQueue{}

	descend := func(n *kdtree.Node) {
		for n != nil {
			p := n.Point.(descriptorPoint)
			keep(candidate{point: p, dist: q.Distance(p)})
			checked++

			diff := q.Compare(p, n.Plane)
			near, far := n.Left, n.Right
			if diff > 0 {
				near, far = n.Right, n.Left
			}
			if far != nil {
				heap.Push(branches, branch{node: far, bound: diff * diff})
			}
			n = near
		}
	}

	descend(tree.Root)
	for branches.Len() > 0 {
		if limit > 0 && checked >= limit {
			break
		}
		b := heap.Pop(branches).(branch)
		// 等距点可能下标更小，不能按 >= 剪枝
		if b.bound > worst() {
			continue
		}
		descend(b.node)
	}
	return best
}

type branch struct {
	node  *kdtree.Node
	bound float64
}

type branchQueue []branch

func (q branchQueue) Len() int            { return len(q) }
func (q branchQueue) Less(i, j int) bool  { return q[i].bound < q[j].bound }
func (q branchQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *branchQueue) Push(x interface{}) { *q = append(*q, x.(branch)) }
func (q *branchQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// descriptorPoint 带原始下标的 kd-tree 点，kdtree.New 会重排底层切片
type descriptorPoint struct {
	vec kdtree.Point
	idx int
}

func newDescriptorPoint(d model.Descriptor, idx int) descriptorPoint {
	vec := make(kdtree.Point, len(d))
	for i, v := range d {
		vec[i] = float64(v)
	}
	return descriptorPoint{vec: vec, idx: idx}
}

func (p descriptorPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.vec[d] - c.(descriptorPoint).vec[d]
}

func (p descriptorPoint) Dims() int { return len(p.vec) }

func (p descriptorPoint) Distance(c kdtree.Comparable) float64 {
	return p.vec.Distance(c.(descriptorPoint).vec)
}

type descriptorPoints []descriptorPoint

func (p descriptorPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p descriptorPoints) Len() int                      { return len(p) }
func (p descriptorPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p descriptorPoints) Pivot(d kdtree.Dim) int {
	return descriptorPlane{descriptorPoints: p, dim: d}.Pivot()
}

type descriptorPlane struct {
	descriptorPoints
	dim kdtree.Dim
}

func (p descriptorPlane) Less(i, j int) bool {
	a, b := p.descriptorPoints[i], p.descriptorPoints[j]
	if a.vec[p.dim] != b.vec[p.dim] {
		return a.vec[p.dim] < b.vec[p.dim]
	}
	return a.idx < b.idx
}
func (p descriptorPlane) Swap(i, j int) {
	p.descriptorPoints[i], p.descriptorPoints[j] = p.descriptorPoints[j], p.descriptorPoints[i]
}
// Pivot 全排序后取中位数，kdtree.MedianOfMedians 使用全局随机源会让树形每次不同
func (p descriptorPlane) Pivot() int {
	sort.Sort(p)
	return p.Len() / 2
}

// BruteForceMatcher 纯 Go 暴力匹配，用作小规模数据和测试的基准
type BruteForceMatcher struct{}

func (BruteForceMatcher) KnnMatch(ref, query []model.Descriptor, k int) ([][]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	out := make([][]Neighbor, len(ref))
	for i, r := range ref {
		row := make([]Neighbor, 0, len(query))
		for j, q := range query {
			if len(q) != len(r) {
				return nil, fmt.Errorf("descriptor dims differ: %d vs %d", len(r), len(q))
			}
			row = append(row, Neighbor{RefIdx: i, QueryIdx: j, Distance: euclidean(r, q)})
		}
		sort.SliceStable(row, func(a, b int) bool { return row[a].Distance < row[b].Distance })
		if len(row) > k {
			row = row[:k]
		}
		out[i] = row
	}
	return out, nil
}

func euclidean(a, b model.Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
