package atlas

import "math"

const earthRadiusKm = 6371.0

// 文档注释：KD-Tree 最近邻（三维单位向量）
// 背景：经纬度平面在高纬与 180° 经线附近会失真，剪枝不可靠；改为球面单位向量上的欧氏距离，弦长与大圆距离单调一致。
// 约束：按 x/y/z 轮换分割；只支持最近一个点查询；节点只保存城市下标，城市数据仍在数据集切片中。
type kdNode struct {
	idx int
	v   [3]float64
	ax  int
	l   *kdNode
	r   *kdNode
}

type kdItem struct {
	idx int
	v   [3]float64
}

func buildKD(cs []City, idx []int, depth int) *kdNode {
	items := make([]kdItem, len(idx))
	for i, k := range idx {
		items[i] = kdItem{idx: k, v: toVec(cs[k].Latitude, cs[k].Longitude)}
	}
	return buildItems(items, depth)
}

func buildItems(items []kdItem, depth int) *kdNode {
	if len(items) == 0 {
		return nil
	}
	ax := depth % 3
	mid := len(items) / 2
	selectNth(items, mid, ax)
	node := &kdNode{idx: items[mid].idx, v: items[mid].v, ax: ax}
	node.l = buildItems(items[:mid], depth+1)
	node.r = buildItems(items[mid+1:], depth+1)
	return node
}

// 原地 nth 元素选择
func selectNth(a []kdItem, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []kdItem, lo, hi, pivot, ax int) int {
	pv := a[pivot].v[ax]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if a[j].v[ax] < pv {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

// nearest 返回最近城市下标与弦长平方；空树返回 -1
func nearest(node *kdNode, q [3]float64) (int, float64) {
	best := -1
	bestD := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		d := dist2(q, n.v)
		if d < bestD || (d == bestD && n.idx < best) {
			bestD = d
			best = n.idx
		}
		diff := q[n.ax] - n.v[n.ax]
		first, second := n.l, n.r
		if diff > 0 {
			first, second = n.r, n.l
		}
		dfs(first)
		// 分割平面到查询点的距离不小于当前最优时跳过另一侧
		if diff*diff <= bestD {
			dfs(second)
		}
	}
	dfs(node)
	return best, bestD
}

func toVec(lat, lon float64) [3]float64 {
	la := lat * math.Pi / 180
	lo := lon * math.Pi / 180
	return [3]float64{math.Cos(la) * math.Cos(lo), math.Cos(la) * math.Sin(lo), math.Sin(la)}
}

func dist2(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}

// 弦长平方换算为大圆距离（千米）
func chordToKm(d2 float64) float64 {
	c := math.Sqrt(d2) / 2
	if c > 1 {
		c = 1
	}
	return 2 * earthRadiusKm * math.Asin(c)
}

// Haversine 球面距离，返回千米
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
