// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package binding

import (
	"testing"

	"github.com/mannjg/stateguard/internal/classfile"
	"github.com/mannjg/stateguard/internal/graph"
)

func classLit(t string) classfile.StackValue {
	return classfile.StackValue{Kind: classfile.KindLiteral, Type: t, Literal: t}
}

func buildGraphWithModule(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()

	must := func(err error) {
		if err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}

	must(g.AddClass(&classfile.ClassNode{Name: "com.acme.PaymentGateway", IsInterface: true}))
	must(g.AddClass(&classfile.ClassNode{Name: "com.acme.StripeGateway"}))
	must(g.AddClass(&classfile.ClassNode{
		Name:  "com.acme.AppModule",
		Super: "com.google.inject.AbstractModule",
		Methods: []*classfile.MethodNode{
			{
				Name:       "configure",
				Descriptor: "()V",
				Invocations: []classfile.MethodInvocation{
					{
						Target:    classfile.MethodRef{Owner: "com.google.inject.Binder", Name: "bind", Descriptor: "(Ljava/lang/Class;)Lcom/google/inject/binder/AnnotatedBindingBuilder;"},
						Arguments: []classfile.StackValue{classLit("com.acme.PaymentGateway")},
					},
					{
						Target:    classfile.MethodRef{Owner: "com.google.inject.binder.LinkedBindingBuilder", Name: "to", Descriptor: "(Ljava/lang/Class;)V"},
						Arguments: []classfile.StackValue{classLit("com.acme.StripeGateway")},
					},
				},
			},
		},
	}))

	g.Freeze()
	return g
}

func TestParseDeclarativeModuleBindTo(t *testing.T) {
	g := buildGraphWithModule(t)
	bindings, moduleOf := Parse(g)

	impls := bindings[graph.BindingKey{Type: "com.acme.PaymentGateway"}]
	if !impls["com.acme.StripeGateway"] {
		t.Errorf("bindings[PaymentGateway] = %v, want to contain StripeGateway", impls)
	}
	if moduleOf["com.acme.StripeGateway"] != "com.acme.AppModule" {
		t.Errorf("moduleOf[StripeGateway] = %q, want com.acme.AppModule", moduleOf["com.acme.StripeGateway"])
	}
}

func TestParseBeanDiscoveryScopeAnnotation(t *testing.T) {
	g := graph.NewGraph()
	must := func(err error) {
		if err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	must(g.AddClass(&classfile.ClassNode{Name: "com.acme.Notifier", IsInterface: true}))
	must(g.AddClass(&classfile.ClassNode{
		Name:        "com.acme.EmailNotifier",
		Interfaces:  []string{"com.acme.Notifier"},
		Annotations: []string{"javax.inject.Singleton"},
	}))
	g.Freeze()

	bindings, _ := Parse(g)
	impls := bindings[graph.BindingKey{Type: "com.acme.Notifier"}]
	if !impls["com.acme.EmailNotifier"] {
		t.Errorf("bindings[Notifier] = %v, want to contain EmailNotifier", impls)
	}
}

func TestParseProviderMethod(t *testing.T) {
	g := graph.NewGraph()
	must := func(err error) {
		if err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	must(g.AddClass(&classfile.ClassNode{
		Name: "com.acme.AppModule",
		Methods: []*classfile.MethodNode{
			{
				Name:        "provideClock",
				Descriptor:  "()Ljava/time/Clock;",
				Annotations: []string{"com.google.inject.Provides"},
			},
		},
	}))
	g.Freeze()

	bindings, _ := Parse(g)
	impls := bindings[graph.BindingKey{Type: "java.time.Clock"}]
	if !impls["com.acme.AppModule"] {
		t.Errorf("bindings[Clock] = %v, want to contain AppModule", impls)
	}
}
