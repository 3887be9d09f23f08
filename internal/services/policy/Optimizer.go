package policy

import (
	"math"
)

const (
	DefaultLearningRate = 0.001
	adamBeta1           = 0.9
	adamBeta2           = 0.999
	adamEpsilon         = 1e-8
)

// Adam keeps first and second moment estimates for every parameter of a network
type Adam struct {
	LearningRate float64  `json:"learning_rate"`
	Beta1        float64  `json:"beta1"`
	Beta2        float64  `json:"beta2"`
	Epsilon      float64  `json:"epsilon"`
	Step         int      `json:"step"`
	M            *Network `json:"m"`
	V            *Network `json:"v"`
}

func NewAdam(net *Network, learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        adamBeta1,
		Beta2:        adamBeta2,
		Epsilon:      adamEpsilon,
		M:            net.zeros(),
		V:            net.zeros(),
	}
}

// Apply performs one bias-corrected update of net using grads
func (a *Adam) Apply(net, grads *Network) {
	a.Step++
	correction1 := 1 - math.Pow(a.Beta1, float64(a.Step))
	correction2 := 1 - math.Pow(a.Beta2, float64(a.Step))
	stepSize := a.LearningRate / correction1

	params := net.params()
	gradParams := grads.params()
	ms := a.M.params()
	vs := a.V.params()

	for p := range params {
		param, grad, m, v := params[p], gradParams[p], ms[p], vs[p]
		for i := range param {
			g := grad[i]
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g*g
			denom := math.Sqrt(v[i])/math.Sqrt(correction2) + a.Epsilon
			param[i] -= stepSize * m[i] / denom
		}
	}
}

func (a *Adam) clone() *Adam {
	c := *a
	c.M = a.M.Clone()
	c.V = a.V.Clone()
	return &c
}
