// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent wraps a single model call made on behalf of a persona.

# Overview

An Invoker turns (persona definition, prompt) into a Response carrying the
generated text, token usage, model name and USD cost. It is a pure
request/response wrapper: it never retries and never writes the cost
ledger, so it can be substituted across backends without touching either
concern. Failures are reported as *BackendError.

# Backends

BackendClientFactory resolves a persona.ModelRef to an llm.Provider.
ProviderTable is the standard implementation, built once at process start
and shared by every deliberation.
*/
package agent
