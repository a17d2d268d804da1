// Package models defines the core domain models for receipt splitting.
//
// # Receipts
//
//   - LineItem: one line of a receipt (name, unit price, quantity)
//   - Charges: tax, tip and card fee entered on top of the items
//   - Totals: subtotal and total derived from items and charges
//   - Receipt: a saved receipt as passed to review and save flows
//
// # Settlement
//
//   - Participant: a person sharing the bill and their preferred currency
//   - SplitResult: one participant's converted share
//   - SplitOutcome: the whole split, including the fee-adjusted total
//
// # Design Principles
//
//  1. **Decimals for money**: every amount is a decimal.Decimal; floats only
//     appear at the JSON boundary.
//  2. **Derived totals**: Totals is recomputed from items and charges and is
//     never stored on its own, so a receipt's total cannot drift from its parts.
//  3. **Caller-owned participants**: identity lives outside this module;
//     participants are plain values with an ID and a currency.
package models
