package application

import (
	"errors"
	"hash/fnv"
)

// Strategy maps a card number onto one of n routes.
type Strategy func(cardNumber string, n int) int

// LastDigitParity routes on the last digit modulo the number of routes. With
// two routes, even cards go to the first and odd cards to the second.
func LastDigitParity(cardNumber string, n int) int {
	if cardNumber == "" {
		return 0
	}
	d := cardNumber[len(cardNumber)-1]
	if d < '0' || d > '9' {
		return 0
	}
	return int(d-'0') % n
}

// WeightedHash spreads cards over routes by FNV-1a hash, giving route i
// weights[i] slots. Routes without a weight get one slot.
func WeightedHash(weights ...int) Strategy {
	return func(cardNumber string, n int) int {
		total := 0
		for i := range n {
			total += weight(weights, i)
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(cardNumber))
		slot := int(h.Sum32() % uint32(total))
		for i := range n {
			slot -= weight(weights, i)
			if slot < 0 {
				return i
			}
		}
		return n - 1
	}
}

func weight(weights []int, i int) int {
	if i < len(weights) && weights[i] > 0 {
		return weights[i]
	}
	return 1
}

type Route struct {
	Name      string
	Processor Processor
}

// Router picks a processor for each card from a fixed table.
type Router struct {
	routes   []Route
	strategy Strategy
}

func NewRouter(strategy Strategy, routes ...Route) (*Router, error) {
	if len(routes) == 0 {
		return nil, errors.New("router needs at least one route")
	}
	if strategy == nil {
		strategy = LastDigitParity
	}
	return &Router{routes: routes, strategy: strategy}, nil
}

func (r *Router) Route(cardNumber string) Route {
	i := r.strategy(cardNumber, len(r.routes))
	if i < 0 || i >= len(r.routes) {
		i = 0
	}
	return r.routes[i]
}
