package policy

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Layer is a fully connected layer. Weights are stored row-major, Out rows of In columns.
type Layer struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

func newLayer(in, out int, rng *rand.Rand) *Layer {
	layer := &Layer{
		In:      in,
		Out:     out,
		Weights: make([]float64, in*out),
		Bias:    make([]float64, out),
	}

	// uniform(-1/sqrt(fan_in), 1/sqrt(fan_in))
	bound := 1 / math.Sqrt(float64(in))
	for i := range layer.Weights {
		layer.Weights[i] = (rng.Float64()*2 - 1) * bound
	}
	for i := range layer.Bias {
		layer.Bias[i] = (rng.Float64()*2 - 1) * bound
	}
	return layer
}

func (l *Layer) forward(input []float64) []float64 {
	out := make([]float64, l.Out)
	for o := 0; o < l.Out; o++ {
		row := l.Weights[o*l.In : (o+1)*l.In]
		out[o] = floats.Dot(row, input) + l.Bias[o]
	}
	return out
}

// Network is a multilayer perceptron with ReLU on every hidden layer and a linear output
type Network struct {
	Layers []*Layer `json:"layers"`
}

// NewNetwork builds a network for the given layer sizes, e.g. 10, 128, 64, 3
func NewNetwork(sizes []int, rng *rand.Rand) *Network {
	net := &Network{}
	for i := 0; i+1 < len(sizes); i++ {
		net.Layers = append(net.Layers, newLayer(sizes[i], sizes[i+1], rng))
	}
	return net
}

func (n *Network) InputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0].In
}

func (n *Network) OutputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[len(n.Layers)-1].Out
}

// Forward returns the network output for one input vector
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("%w: expected %d inputs, got %d", ErrInvalidState, n.InputSize(), len(input))
	}
	activations := n.activations(input)
	return activations[len(activations)-1], nil
}

// activations returns the input followed by each layer's post-activation output
func (n *Network) activations(input []float64) [][]float64 {
	acts := make([][]float64, 0, len(n.Layers)+1)
	acts = append(acts, input)

	current := input
	for i, layer := range n.Layers {
		current = layer.forward(current)
		if i < len(n.Layers)-1 {
			relu(current)
		}
		acts = append(acts, current)
	}
	return acts
}

// backward accumulates parameter gradients for one sample into grads, given
// the gradient of the loss with respect to the network output.
func (n *Network) backward(acts [][]float64, outGrad []float64, grads *Network) {
	delta := outGrad
	for i := len(n.Layers) - 1; i >= 0; i-- {
		layer := n.Layers[i]
		grad := grads.Layers[i]
		input := acts[i]

		for o := 0; o < layer.Out; o++ {
			if delta[o] == 0 {
				continue
			}
			grad.Bias[o] += delta[o]
			floats.AddScaled(grad.Weights[o*layer.In:(o+1)*layer.In], delta[o], input)
		}

		if i == 0 {
			break
		}

		prev := make([]float64, layer.In)
		for o := 0; o < layer.Out; o++ {
			if delta[o] == 0 {
				continue
			}
			floats.AddScaled(prev, delta[o], layer.Weights[o*layer.In:(o+1)*layer.In])
		}
		// derivative of the ReLU that produced input
		for j, a := range input {
			if a <= 0 {
				prev[j] = 0
			}
		}
		delta = prev
	}
}

// Clone returns a deep copy of the network
func (n *Network) Clone() *Network {
	clone := &Network{Layers: make([]*Layer, len(n.Layers))}
	for i, layer := range n.Layers {
		clone.Layers[i] = &Layer{
			In:      layer.In,
			Out:     layer.Out,
			Weights: append([]float64(nil), layer.Weights...),
			Bias:    append([]float64(nil), layer.Bias...),
		}
	}
	return clone
}

// zeros returns a network of the same shape with every parameter set to 0
func (n *Network) zeros() *Network {
	z := &Network{Layers: make([]*Layer, len(n.Layers))}
	for i, layer := range n.Layers {
		z.Layers[i] = zeroLayer(layer.In, layer.Out)
	}
	return z
}

func shapeOf(sizes []int) *Network {
	net := &Network{}
	for i := 0; i+1 < len(sizes); i++ {
		net.Layers = append(net.Layers, zeroLayer(sizes[i], sizes[i+1]))
	}
	return net
}

func zeroLayer(in, out int) *Layer {
	return &Layer{
		In:      in,
		Out:     out,
		Weights: make([]float64, in*out),
		Bias:    make([]float64, out),
	}
}

// CopyFrom overwrites the parameters of n with those of src. Shapes must match.
func (n *Network) CopyFrom(src *Network) error {
	if !n.sameShape(src) {
		return ErrCheckpointMismatch
	}
	for i, layer := range src.Layers {
		copy(n.Layers[i].Weights, layer.Weights)
		copy(n.Layers[i].Bias, layer.Bias)
	}
	return nil
}

func (n *Network) sameShape(other *Network) bool {
	if other == nil || len(n.Layers) != len(other.Layers) {
		return false
	}
	for i, layer := range n.Layers {
		o := other.Layers[i]
		if o == nil || layer.In != o.In || layer.Out != o.Out ||
			len(o.Weights) != layer.In*layer.Out || len(o.Bias) != layer.Out {
			return false
		}
	}
	return true
}

// params returns the parameter slices in a fixed order: weights then bias per layer
func (n *Network) params() [][]float64 {
	params := make([][]float64, 0, 2*len(n.Layers))
	for _, layer := range n.Layers {
		params = append(params, layer.Weights, layer.Bias)
	}
	return params
}

func relu(values []float64) {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
}
